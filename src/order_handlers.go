package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"etix/src/config"
	"etix/src/db"
	"etix/src/lib"
	"etix/src/lib/momo"
	"etix/src/services"
	"etix/src/types"

	"github.com/gin-gonic/gin"
)

var orderSvc *services.Orders

func getOrderSvc() *services.Orders {
	if orderSvc == nil {
		orderSvc = services.NewOrders(
			db.GetDb(),
			momo.NewClient(config.GetMomoConfig()),
			services.StorageQRIssuer{},
			services.SMTPReceiptSender{},
			config.OrderTTL(),
		)
	}
	return orderSvc
}

func respondError(ctx *gin.Context, err error) {
	log.Printf("%s %s: %s\n", ctx.Request.Method, ctx.Request.URL.Path, err.Error())
	ctx.JSON(services.HTTPStatus(err), gin.H{"error": err.Error()})
}

func orderHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/orders", func(ctx *gin.Context) {
			var body types.CreateOrderRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			if body.BuyerInfo == nil {
				body.BuyerInfo = &types.BuyerInfoInput{}
			}
			if body.BuyerInfo.Email == "" {
				body.BuyerInfo.Email = ctx.GetString("email")
			}
			order, err := getOrderSvc().Create(userId, &body)
			if err != nil {
				respondError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": order})
		}).
		GET("/orders", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			orders, err := getOrderSvc().List(userId)
			if err != nil {
				respondError(ctx, err)
				return
			}
			now := time.Now()
			data := make([]gin.H, 0, len(orders))
			for _, order := range orders {
				data = append(data, gin.H{
					"order":   order,
					"expired": order.Expired(now) && order.Status == types.ORDER_PROCESSING,
				})
			}
			ctx.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
		}).
		GET("/orders/:id", func(ctx *gin.Context) {
			var params types.SimpleIDParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			order, err := getOrderSvc().Get(params.ID, userId)
			if err != nil {
				respondError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		}).
		PUT("/orders/:id", func(ctx *gin.Context) {
			var params types.SimpleIDParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.UpdateOrderRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			order, err := getOrderSvc().Update(params.ID, userId, &body)
			if err != nil {
				respondError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order})
		}).
		POST("/orders/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleIDParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			order, expired, err := getOrderSvc().Cancel(params.ID, userId)
			if err != nil {
				respondError(ctx, err)
				return
			}
			message := "Order cancelled"
			if expired {
				message = "Order expired and cancelled"
			}
			ctx.JSON(http.StatusOK, gin.H{"data": order, "message": message})
		}).
		POST("/orders/momo/pay", func(ctx *gin.Context) {
			var body types.PayOrderRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			data, order, err := getOrderSvc().Pay(ctx.Request.Context(), body.OrderID)
			if err != nil {
				respondError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": data, "order": order})
		})
	return g
}

// momoReturnRoute is the public redirect/IPN endpoint the gateway
// calls after the buyer finishes (or abandons) the wallet flow.
func momoReturnRoute(g *gin.Engine) {
	apiv1 := apiv1Group(g)
	apiv1.GET("/orders/momo/return", func(ctx *gin.Context) {
		res, err := momo.ParseCallback(ctx.Request.URL.Query())
		if err != nil {
			log.Printf("Rejected gateway callback: %s\n", err.Error())
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment callback"})
			return
		}

		// shed provider retry storms; reconciliation stays idempotent
		// without this when redis is down
		if res.TransID != "" {
			if rd := lib.GetRedisClient(); rd != nil {
				ok, err := rd.SetNX(context.Background(), "momo:callback:"+res.TransID, res.OrderID, 24*time.Hour).Result()
				if err == nil && !ok {
					log.Printf("Duplicate callback for transId [%s], skipping\n", res.TransID)
					ctx.JSON(http.StatusOK, gin.H{"success": res.Success(), "duplicate": true})
					return
				}
			}
		}

		order, err := getOrderSvc().Reconcile(&services.PaymentResult{
			OrderID: res.OrderID,
			TransID: res.TransID,
			Success: res.Success(),
			Message: res.Message,
			Raw:     res.Raw,
		})
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				// nothing to reconcile; acknowledge so the provider
				// stops retrying
				log.Printf("Callback for unknown order [%s]\n", res.OrderID)
				ctx.JSON(http.StatusOK, gin.H{"success": res.Success()})
				return
			}
			respondError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"success": res.Success(), "data": order})
	})
}
