package main

import (
	"errors"
	"log"
	"net/http"
	"olympia/src/common"
	"olympia/src/config"
	"olympia/src/db"
	"olympia/src/middlewares"
	"olympia/src/models"
	"olympia/src/types"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var organizerRoles = []types.Role{types.ROLE_SUPERADMIN, types.ROLE_ORGANIZER}

func eventHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/events", middlewares.RequireRoles(organizerRoles...), func(ctx *gin.Context) {
			var body types.CreateEventRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			startsAt, err := time.Parse(config.TIME_PARSE_FORMAT, body.StartsAt)
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			event := models.Event{
				Title:       body.Title,
				Location:    body.Location,
				StartsAt:    startsAt,
				Status:      types.EVENT_DRAFT,
				OrganizerID: ctx.GetUint("id"),
			}
			db := db.GetDb()
			if err := db.Create(&event).Error; err != nil {
				log.Printf("Error creating Event: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"id": event.ID})
		}).
		GET("/events/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var event models.Event
			db := db.GetDb()
			if err := db.Where("id = ?", params.ID).Preload("Tickets").First(&event).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
					return
				}
				log.Printf("Error retrieving Event: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": event})
		}).
		PATCH("/events/:id/publish", middlewares.RequireRoles(organizerRoles...), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			db := db.GetDb()
			res := db.Model(&models.Event{}).
				Where("id = ? AND status = ?", params.ID, types.EVENT_DRAFT).
				Update("status", types.EVENT_PUBLISHED)
			if res.Error != nil {
				log.Printf("Error publishing Event: %s\n", res.Error.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
				return
			}
			if res.RowsAffected == 0 {
				ctx.JSON(http.StatusConflict, gin.H{"error": "Event is not a draft"})
				return
			}
			ctx.Status(http.StatusOK)
		}).
		GET("/events/:id/check-in-snapshot", middlewares.RequireRoles(types.CheckInRoles...), func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			snap, err := svc.verify.Snapshot(ctx.Request.Context(), params.ID)
			if errors.Is(err, common.ErrNotFound) {
				ctx.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
				return
			}
			if err != nil {
				log.Printf("[Snapshot] event %d: %s\n", params.ID, err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, snap)
		})
	return g
}
