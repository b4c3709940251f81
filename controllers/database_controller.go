package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/pkg/apperrors"
	"dbmonitorapi/pkg/logger"
	"dbmonitorapi/services/authz"
	"dbmonitorapi/services/registry"
	"dbmonitorapi/utils"
)

const passwordMask = "********"

// connectionView is the API shape of one saved connection. Passwords are
// masked, never echoed back.
type connectionView struct {
	DBKey    string                 `json:"db_key"`
	Name     string                 `json:"name"`
	Type     string                 `json:"type"`
	IsFolder bool                   `json:"is_folder"`
	Owner    string                 `json:"owner"`
	Fields   map[string]string      `json:"fields,omitempty"`
	Extra    map[string]interface{} `json:"extra_options,omitempty"`
	Group    string                 `json:"group"`
	Order    int                    `json:"order"`
	Status   interface{}            `json:"status,omitempty"`
}

func toView(e registry.Entry) connectionView {
	v := connectionView{
		DBKey:    e.DBKey,
		Name:     e.Name,
		Type:     e.Engine,
		IsFolder: e.IsFolder,
		Owner:    e.UserID,
		Extra:    e.Extra,
		Group:    e.Group,
		Order:    e.Order,
	}
	if len(e.Fields) > 0 {
		v.Fields = make(map[string]string, len(e.Fields))
		for k, val := range e.Fields {
			if k == "password" {
				val = passwordMask
			}
			v.Fields[k] = val
		}
	}
	if e.Status != nil {
		v.Status = e.Status
	}
	return v
}

// getDatabases lists the caller's connections plus granted ones, with the
// cached health status attached.
func getDatabases(c *gin.Context) {
	user := currentUser(c)
	granted, err := authzSrv.GrantedKeys(user)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	entries := registrySrv.List(user, granted)
	views := make([]connectionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toView(e))
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"databases": views})
}

type saveConnectionRequest struct {
	DBKey string `json:"db_key"`
	registry.Spec
}

// postSaveConnection creates a new connection, or updates one when db_key is
// set. Non-folder connections are probed first and refused if unreachable.
func postSaveConnection(c *gin.Context) {
	var req saveConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	user := currentUser(c)

	if req.DBKey != "" {
		if err := registrySrv.Update(user, req.DBKey, &req.Spec); err != nil {
			utils.ErrorResponse(c, err)
			return
		}
		logger.Infof("User %s updated connection %s", user, req.DBKey)
		utils.JSONResponse(c, http.StatusOK, gin.H{"success": true, "db_key": req.DBKey})
		return
	}

	if req.Spec.Engine != registry.EngineFolder {
		st, err := registrySrv.TestSpec(c.Request.Context(), &req.Spec)
		if err != nil {
			utils.ErrorResponse(c, err)
			return
		}
		if !st.Connected {
			utils.ErrorResponse(c, apperrors.Newf(apperrors.Connection, "connection test failed: %s", st.Error))
			return
		}
	}

	key, err := registrySrv.Create(user, &req.Spec)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	logger.Infof("User %s created connection %s (%s)", user, key, req.Spec.Engine)
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true, "db_key": key})
}

// postDisconnect deletes a connection, closing its live handle and cascading
// grant removal.
func postDisconnect(c *gin.Context) {
	user := currentUser(c)
	key := c.Param("key")
	if err := registrySrv.Delete(user, key); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	if err := authzSrv.DeleteGrantsForKey(key); err != nil {
		logger.Errorf("Grant cleanup for %s failed: %v", key, err)
	}
	if monitorSrv != nil {
		monitorSrv.Forget(key)
	}
	logger.Infof("User %s deleted connection %s", user, key)
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

// postTestConnection probes a connection description without persisting it.
func postTestConnection(c *gin.Context) {
	var spec registry.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	st, err := registrySrv.TestSpec(c.Request.Context(), &spec)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": st.Connected, "status": st})
}

type reorderRequest struct {
	Updates []registry.ReorderUpdate `json:"updates" validate:"required,min=1"`
}

// postReorder applies a batched group/order rewrite.
func postReorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "updates list is required")
		return
	}
	if err := registrySrv.Reorder(currentUser(c), req.Updates); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

type deleteFolderRequest struct {
	Name string `json:"name" validate:"required"`
}

// postDeleteFolder removes a folder marker and moves its members to the root
// group.
func postDeleteFolder(c *gin.Context) {
	var req deleteFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "folder name is required")
		return
	}
	if err := registrySrv.DeleteFolder(currentUser(c), req.Name); err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"success": true})
}

// RegisterDatabaseRoutes registers the connection management endpoints.
func RegisterDatabaseRoutes(rg *gin.RouterGroup) {
	rg.GET("/databases", getDatabases)
	manage := rg.Group("", RequirePermission(authz.PermManageConnections))
	{
		manage.POST("/save-connection", postSaveConnection)
		manage.POST("/disconnect/:key", postDisconnect)
		manage.POST("/test-connection", postTestConnection)
		manage.POST("/connections/reorder", postReorder)
		manage.POST("/delete-folder", postDeleteFolder)
	}
}
