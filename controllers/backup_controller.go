package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/utils"
)

type exportRequest struct {
	Password string `json:"password" validate:"required"`
}

// postExport encrypts the caller's connection set under a password and
// returns the archive inline; nothing is stored server-side.
func postExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "password is required")
		return
	}
	data, filename, err := backupSrv.Export(currentUser(c), req.Password)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{
		"success":  true,
		"data":     data,
		"filename": filename,
	})
}

type importRequest struct {
	Password string `json:"password" validate:"required"`
	Data     string `json:"data" validate:"required"`
}

// postImport restores connections from an archive, always as new records.
func postImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "password and data are required")
		return
	}
	user := currentUser(c)
	count, err := backupSrv.Import(user, req.Password, req.Data)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	logger.Infof("User %s imported %d connections", user, count)
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true, "imported": count})
}

// RegisterBackupRoutes registers the export/import endpoints.
func RegisterBackupRoutes(rg *gin.RouterGroup) {
	rg.POST("/connections/export", postExport)
	rg.POST("/connections/import", postImport)
}
