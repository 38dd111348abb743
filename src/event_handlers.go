package main

import (
	"errors"
	"net/http"

	"etix/src/db"
	"etix/src/models"
	"etix/src/types"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// eventRoutes is the public read surface of the inventory store: what
// is on sale and how many units each tier has left.
func eventRoutes(g *gin.Engine) {
	apiv1 := apiv1Group(g)
	apiv1.GET("/events/:id", func(ctx *gin.Context) {
		var params types.EventIDParams
		if err := ctx.ShouldBindUri(&params); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var event models.Event
		db := db.GetDb()
		err := db.
			Preload("TicketTypes").
			Where(&models.Event{ID: params.ID, Status: types.EVENT_APPROVED}).
			First(&event).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tiers := make([]gin.H, 0, len(event.TicketTypes))
		for _, tier := range event.TicketTypes {
			tiers = append(tiers, gin.H{
				"name":      tier.Name,
				"price":     tier.Price,
				"remaining": tier.Remaining(),
			})
		}
		ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
			"event":        event,
			"ticket_types": tiers,
		}})
	})
}
