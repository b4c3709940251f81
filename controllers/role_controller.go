package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/services/authz"
	"dbmonitorapi/utils"
)

func getRoles(c *gin.Context) {
	roles, err := authzSrv.ListRoles()
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"roles": roles})
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

func postRole(c *gin.Context) {
	var req createRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "name and permissions are required")
		return
	}
	if err := authzSrv.CreateRole(req.Name, req.Description, req.Permissions); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusCreated, gin.H{"success": true})
}

func deleteRole(c *gin.Context) {
	if err := authzSrv.DeleteRole(c.Param("name")); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

// RegisterRoleRoutes registers role management endpoints.
func RegisterRoleRoutes(rg *gin.RouterGroup) {
	roles := rg.Group("/roles", RequirePermission(authz.PermManageRoles))
	{
		roles.GET("", getRoles)
		roles.POST("", postRole)
		roles.DELETE("/:name", deleteRole)
	}
}
