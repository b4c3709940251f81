package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/services/authz"
	"dbmonitorapi/utils"
)

func getGrants(c *gin.Context) {
	grants, err := authzSrv.ListGrants()
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"grants": grants})
}

type createGrantRequest struct {
	Username string `json:"username" validate:"required"`
	DBKey    string `json:"db_key" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// postGrant creates or updates a grant; the (username, db_key) pair stays
// unique.
func postGrant(c *gin.Context) {
	var req createGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "username, db_key and role are required")
		return
	}
	if _, err := registrySrv.Get(req.DBKey); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	if err := authzSrv.UpsertGrant(req.Username, req.DBKey, req.Role); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	logger.Infof("User %s granted %s role %s on %s", currentUser(c), req.Username, req.Role, req.DBKey)
	utils.JSONResponse(c, http.StatusCreated, gin.H{"success": true})
}

func deleteGrant(c *gin.Context) {
	if err := authzSrv.DeleteGrant(c.Param("username"), c.Param("key")); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

// RegisterGrantRoutes registers grant management endpoints.
func RegisterGrantRoutes(rg *gin.RouterGroup) {
	grants := rg.Group("/grants", RequirePermission(authz.PermManageUsers))
	{
		grants.GET("", getGrants)
		grants.POST("", postGrant)
		grants.DELETE("/:username/:key", deleteGrant)
	}
}
