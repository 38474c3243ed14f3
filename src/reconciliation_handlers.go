package main

import (
	"errors"
	"log"
	"net/http"
	"olympia/src/common"
	"olympia/src/middlewares"
	"olympia/src/types"

	"github.com/gin-gonic/gin"
)

func reconciliationHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	r := g.Group("/reconciliation", middlewares.RequireRoles(organizerRoles...))
	r.
		GET("/issues", func(ctx *gin.Context) {
			var query struct {
				Status types.IssueStatus `form:"status" binding:"omitempty,oneof=open resolved"`
			}
			if err := ctx.ShouldBindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			issues, err := svc.reconciliation.List(ctx.Request.Context(), query.Status)
			if err != nil {
				log.Printf("[Reconciliation] list: %s\n", err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": issues})
		}).
		POST("/issues/:id/retry", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			resolved, err := svc.reconciliation.Retry(ctx.Request.Context(), params.ID)
			if errors.Is(err, common.ErrIssueNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"resolved": resolved})
		}).
		POST("/issues/:id/resolve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.ResolveIssueRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			issue, err := svc.reconciliation.Resolve(ctx.Request.Context(), params.ID, ctx.GetUint("id"), body.Note)
			if errors.Is(err, common.ErrIssueNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			if err != nil {
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": issue})
		})
	return g
}
