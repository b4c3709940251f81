package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/utils"
)

// getSchemas lists schema names for a connection.
func getSchemas(c *gin.Context) {
	schemas, err := gatewaySrv.ListSchemas(c.Request.Context(), currentUser(c), c.Param("key"))
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"schemas": schemas})
}

// getTables lists the tables and views of one schema.
func getTables(c *gin.Context) {
	tables, views, err := gatewaySrv.ListTables(c.Request.Context(), currentUser(c), c.Param("key"), c.Param("schema"))
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, gin.H{"tables": tables, "views": views})
}

// getTable returns column metadata and a row preview for one table.
func getTable(c *gin.Context) {
	info, err := gatewaySrv.DescribeTable(c.Request.Context(), currentUser(c),
		c.Param("key"), c.Param("schema"), c.Param("table"))
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, info)
}

type executeRequest struct {
	SQL string `json:"sql" validate:"required"`
}

// postExecute runs a SQL statement after permission classification.
func postExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.BadRequest(c, "sql is required")
		return
	}
	result, err := gatewaySrv.Execute(c.Request.Context(), currentUser(c), c.Param("key"), req.SQL)
	if err != nil {
		utils.ErrorResponse(c, err)
		return
	}
	utils.JSONResponse(c, http.StatusOK, result)
}

// RegisterQueryRoutes registers the introspection and execution endpoints.
func RegisterQueryRoutes(rg *gin.RouterGroup) {
	db := rg.Group("/database/:key")
	{
		db.GET("/schemas", getSchemas)
		db.GET("/schema/:schema/tables", getTables)
		db.GET("/schema/:schema/table/:table", getTable)
		db.POST("/execute", postExecute)
	}
}
