package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"etix/src/db"
	"etix/src/lib"
	"etix/src/models"
	"etix/src/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// canAccessTicket allows the ticket owner, the event organizer and
// admins through.
func canAccessTicket(ctx *gin.Context, ticket *models.Ticket) bool {
	userId := ctx.GetUint("id")
	role := ctx.GetString("role")
	if ticket.OwnerID == userId || role == "admin" {
		return true
	}
	return ticket.Event != nil && ticket.Event.OrganizerID == userId
}

// canCheckIn allows only check-in staff: admins and the organizer of
// the ticket's event.
func canCheckIn(ctx *gin.Context, ticket *models.Ticket) bool {
	role := ctx.GetString("role")
	if role == "admin" {
		return true
	}
	return ticket.Event != nil && ticket.Event.OrganizerID == ctx.GetUint("id")
}

func loadTicket(id string) (*models.Ticket, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return nil, gorm.ErrRecordNotFound
	}
	var ticket models.Ticket
	db := db.GetDb()
	err = db.
		Preload("Event").
		Where("id = ?", tid).
		First(&ticket).
		Error
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func ticketHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/tickets/history", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			var tickets []models.Ticket
			db := db.GetDb()
			err := db.
				Where(&models.Ticket{OwnerID: userId}).
				Preload("Event").
				Order("purchased_at DESC").
				Find(&tickets).
				Error
			if err != nil {
				log.Printf("Error retrieving tickets for user [%d]: %s\n", userId, err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": tickets, "count": len(tickets)})
		}).
		GET("/tickets/:id", func(ctx *gin.Context) {
			var params types.SimpleIDParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticket, err := loadTicket(params.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.Status(http.StatusNotFound)
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if !canAccessTicket(ctx, ticket) {
				ctx.Status(http.StatusForbidden)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticket})
		}).
		GET("/tickets/:id/qr", func(ctx *gin.Context) {
			var params types.SimpleIDParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticket, err := loadTicket(params.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.Status(http.StatusNotFound)
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if !canAccessTicket(ctx, ticket) {
				ctx.Status(http.StatusForbidden)
				return
			}
			if rd := lib.GetRedisClient(); rd != nil {
				cached, err := rd.Get(context.Background(), fmt.Sprintf("ticketqr_%s", ticket.QRCode)).Result()
				if err == nil && cached != "" {
					ctx.Redirect(http.StatusFound, cached)
					return
				}
			}
			if ticket.QRImageURL != nil {
				ctx.Redirect(http.StatusFound, *ticket.QRImageURL)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"qr_code": ticket.QRCode}})
		}).
		POST("/tickets/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleIDParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ticket, err := loadTicket(params.ID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.Status(http.StatusNotFound)
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if ticket.OwnerID != ctx.GetUint("id") {
				ctx.Status(http.StatusForbidden)
				return
			}
			if ticket.Status != types.TICKET_VALID {
				ctx.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("ticket is already %s", ticket.Status)})
				return
			}
			db := db.GetDb()
			if err := db.Model(ticket).Update("status", types.TICKET_CANCELLED).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticket, "message": "Ticket cancelled"})
		}).
		POST("/tickets/checkin", func(ctx *gin.Context) {
			var body types.CheckInRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var ticket models.Ticket
			db := db.GetDb()
			err := db.
				Preload("Event").
				Where(&models.Ticket{QRCode: body.QRCode}).
				First(&ticket).
				Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": "no ticket matches this code"})
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if !canCheckIn(ctx, &ticket) {
				ctx.Status(http.StatusForbidden)
				return
			}
			switch ticket.Status {
			case types.TICKET_USED:
				ctx.JSON(http.StatusConflict, gin.H{"error": "ticket has already been used", "data": ticket})
				return
			case types.TICKET_CANCELLED, types.TICKET_REFUNDED:
				ctx.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("ticket is %s", ticket.Status), "data": ticket})
				return
			}
			if err := db.Model(&ticket).Update("status", types.TICKET_USED).Error; err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": ticket, "message": "Check-in successful"})
		})
	return g
}
