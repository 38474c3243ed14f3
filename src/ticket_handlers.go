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

func ticketHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/tickets", middlewares.RequireRoles(organizerRoles...), func(ctx *gin.Context) {
			var body types.CreateTicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticket, err := svc.inventory.CreateTicket(ctx.Request.Context(), &body)
			if errors.Is(err, common.ErrNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
				return
			}
			if err != nil {
				log.Printf("error creating ticket: %s", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"id": ticket.ID, "data": ticket})
		}).
		GET("/tickets/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticket, err := svc.inventory.GetTicket(ctx.Request.Context(), params.ID)
			if errors.Is(err, common.ErrNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
				return
			}
			if err != nil {
				log.Printf("Error retrieving Ticket: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticket})
		}).
		POST("/tickets/verify", middlewares.RequireRoles(types.CheckInRoles...), func(ctx *gin.Context) {
			var body types.VerifyTicketRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			res, err := svc.verify.Verify(ctx.Request.Context(), body.RedemptionCode)
			if errors.Is(err, common.ErrNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"valid": false, "error": "Ticket not found"})
				return
			}
			if err != nil {
				log.Printf("[Verify] %s: %s\n", body.RedemptionCode, err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, res)
		})
	return g
}
