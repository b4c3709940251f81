package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/services/authz"
	"dbmonitorapi/utils"
)

func getUsers(c *gin.Context) {
	users, err := authzSrv.ListUsers()
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"users": users})
}

type createUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=4"`
	Role     string `json:"role" validate:"required"`
}

func postUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "username, password and role are required")
		return
	}
	if err := authzSrv.CreateUser(req.Username, req.Password, req.Role); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	logger.Infof("User %s created account %s (%s)", currentUser(c), req.Username, req.Role)
	utils.JSONResponse(c, http.StatusCreated, gin.H{"success": true})
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func putUserRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "role is required")
		return
	}
	if err := authzSrv.UpdateUserRole(c.Param("username"), req.Role); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=4"`
}

// putUserPassword is the administrative reset: no old password needed.
func putUserPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "password is required")
		return
	}
	if err := authzSrv.ResetPassword(c.Param("username"), req.Password); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	logger.Infof("User %s reset password for %s", currentUser(c), c.Param("username"))
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

func deleteUser(c *gin.Context) {
	if err := authzSrv.DeleteUser(c.Param("username")); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	logger.Infof("User %s deleted account %s", currentUser(c), c.Param("username"))
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=4"`
}

// postChangePassword is the self-service path; it requires the current
// password and needs no manage_users permission.
func postChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "old and new passwords are required")
		return
	}
	if err := authzSrv.ChangePassword(currentUser(c), req.OldPassword, req.NewPassword); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

// RegisterUserRoutes registers account management plus the self-service
// password change.
func RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.POST("/profile/change-password", postChangePassword)

	users := rg.Group("/users", RequirePermission(authz.PermManageUsers))
	{
		users.GET("", getUsers)
		users.POST("", postUser)
		users.PUT("/:username/role", putUserRole)
		users.PUT("/:username/password", putUserPassword)
		users.DELETE("/:username", deleteUser)
	}
}
