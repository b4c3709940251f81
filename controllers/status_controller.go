package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/utils"
)

// getOnlineUsers returns the current presence roster. The session front
// reports connects and disconnects through the presence endpoints below.
func getOnlineUsers(c *gin.Context) {
	utils.JSONResponse(c, http.StatusOK, gin.H{"online_users": presenceSrv.Online()})
}

// postPresenceConnect records one client connection for the caller and
// republishes the roster.
func postPresenceConnect(c *gin.Context) {
	presenceSrv.Connect(currentUser(c))
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

// postPresenceDisconnect records one client disconnect for the caller.
func postPresenceDisconnect(c *gin.Context) {
	presenceSrv.Disconnect(currentUser(c))
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

// RegisterStatusRoutes registers presence endpoints.
func RegisterStatusRoutes(rg *gin.RouterGroup) {
	rg.GET("/online-users", getOnlineUsers)
	rg.POST("/presence/connect", postPresenceConnect)
	rg.POST("/presence/disconnect", postPresenceDisconnect)
}
