package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"olympia/src/common"
	"olympia/src/middlewares"
	"olympia/src/models"
	"olympia/src/types"
	"strconv"

	"github.com/gin-gonic/gin"
)

func purchaseStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrTicketUnavailable),
		errors.Is(err, common.ErrInsufficientInventory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func auditPurchase(ctx *gin.Context, action types.AuditAction, p *models.TicketPurchase, details types.JSONB) {
	operator := ctx.GetUint("id")
	entry := &models.AuditLog{
		Action:     action,
		EntityType: "ticket-purchases",
		EntityID:   strconv.FormatUint(uint64(p.ID), 10),
		Details:    details,
		IPAddress:  ctx.ClientIP(),
		UserAgent:  ctx.Request.UserAgent(),
		CreatedBy:  &operator,
	}
	if err := svc.audit.Append(context.WithoutCancel(ctx.Request.Context()), entry); err != nil {
		log.Printf("[Audit] failed to record %s for purchase %d: %s\n", action, p.ID, err.Error())
	}
}

func purchaseHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/tickets/:id/purchases", middlewares.Idempotency(svc.rd), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.CreatePurchaseRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			purchase, err := svc.inventory.CreatePurchase(ctx.Request.Context(), params.ID, ctx.GetUint("id"), body.Quantity)
			if err != nil {
				log.Printf("[Purchase] ticket %d by user %d: %s\n", params.ID, ctx.GetUint("id"), err.Error())
				ctx.JSON(purchaseStatus(err), gin.H{"error": err.Error()})
				return
			}
			auditPurchase(ctx, types.AUDIT_CREATE, purchase, types.JSONB{
				"ticketId": purchase.TicketID,
				"quantity": purchase.Quantity,
				"status":   purchase.Status,
			})
			ctx.JSON(http.StatusCreated, gin.H{"data": purchase})
		}).
		POST("/purchases/:id/complete", middlewares.RequireRoles(organizerRoles...), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			purchase, err := svc.inventory.CompletePurchase(ctx.Request.Context(), params.ID)
			if err != nil {
				log.Printf("[Purchase] complete %d: %s\n", params.ID, err.Error())
				ctx.JSON(purchaseStatus(err), gin.H{"error": err.Error()})
				return
			}
			auditPurchase(ctx, types.AUDIT_STATUS_CHANGE, purchase, types.JSONB{
				"field": "status",
				"to":    purchase.Status,
			})
			ctx.JSON(http.StatusOK, gin.H{"data": purchase})
		}).
		POST("/purchases/:id/cancel", middlewares.RequireRoles(organizerRoles...), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			purchase, err := svc.inventory.CancelPurchase(ctx.Request.Context(), params.ID)
			if err != nil {
				log.Printf("[Purchase] cancel %d: %s\n", params.ID, err.Error())
				ctx.JSON(purchaseStatus(err), gin.H{"error": err.Error()})
				return
			}
			auditPurchase(ctx, types.AUDIT_STATUS_CHANGE, purchase, types.JSONB{
				"field": "status",
				"to":    purchase.Status,
			})
			ctx.JSON(http.StatusOK, gin.H{"data": purchase})
		})
	return g
}
