package main

import (
	"errors"
	"log"
	"net/http"
	"olympia/src/common"
	"olympia/src/middlewares"
	"olympia/src/types"
	"olympia/src/utils"
	"time"

	"github.com/gin-gonic/gin"
)

func admissionHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/check-in", middlewares.RequireRoles(types.CheckInRoles...), func(ctx *gin.Context) {
			var body types.CheckInRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				log.Printf("[CheckIn] invalid request from operator %d: %s\n", ctx.GetUint("id"), err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			code := body.Code()
			if code == "" {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "Ticket ID is required"})
				return
			}
			photo, err := utils.DecodePhotoData(body.PhotoData)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var capturedAt *time.Time
			if body.OfflineTimestamp != nil && *body.OfflineTimestamp != "" {
				t, err := time.Parse(time.RFC3339Nano, *body.OfflineTimestamp)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "offlineTimestamp must be RFC 3339"})
					return
				}
				capturedAt = &t
			}
			operatorID := ctx.GetUint("id")
			if body.UserID != nil && *body.UserID != operatorID {
				log.Printf("[CheckIn] operator %d submitted on behalf of user %d\n", operatorID, *body.UserID)
			}

			res, err := svc.redemption.Redeem(ctx.Request.Context(), common.RedeemInput{
				Code:             code,
				Photo:            photo,
				ClientCapturedAt: capturedAt,
				OperatorID:       operatorID,
				IPAddress:        ctx.ClientIP(),
				UserAgent:        ctx.Request.UserAgent(),
			})
			var conflict *common.AlreadyRedeemedError
			switch {
			case errors.As(err, &conflict):
				ctx.JSON(http.StatusConflict, gin.H{
					"error": "Ticket already checked in",
					"existingCheckIn": gin.H{
						"timestamp": conflict.CheckInTime,
						"photo":     conflict.PhotoRef,
					},
				})
				return
			case errors.Is(err, common.ErrNotFound):
				ctx.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
				return
			case errors.Is(err, common.ErrNotRedeemable):
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			case err != nil:
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check in ticket", "details": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"success":        true,
				"status":         "checked_in",
				"ticketPurchase": res.Purchase,
				"wasOfflineSync": res.WasOfflineSync,
			})
		})
	return g
}
