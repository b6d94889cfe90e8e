package main

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/GaetanCrabeels/bkdesign/internal/bpost"
	"github.com/GaetanCrabeels/bkdesign/internal/checkout"
	"github.com/GaetanCrabeels/bkdesign/internal/config"
	"github.com/GaetanCrabeels/bkdesign/internal/httpx"
	"github.com/GaetanCrabeels/bkdesign/internal/order"
	"github.com/GaetanCrabeels/bkdesign/internal/payments"
	"github.com/GaetanCrabeels/bkdesign/internal/product"
)

func newRouter(orders order.Repository, variants product.Repository, builder *checkout.Builder, processor *payments.Processor, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), httpx.CORS(cfg.ClientURL))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.POST("/shipping/begin", beginShippingHandler(orders, variants, cfg))

	// The Shipping Manager callback is not guaranteed to be a POST.
	confirm := confirmShippingHandler(orders)
	r.GET("/shipping/confirm", confirm)
	r.POST("/shipping/confirm", confirm)
	r.GET("/shipping/status", shippingStatusHandler(orders))
	r.GET("/shipping/error", redirectHandler(cfg.ClientURL+"/error"))
	r.POST("/shipping/error", redirectHandler(cfg.ClientURL+"/error"))
	r.GET("/shipping/cancel", redirectHandler(cfg.ClientURL+"/cancel"))
	r.POST("/shipping/cancel", redirectHandler(cfg.ClientURL+"/cancel"))

	// Retry shares create's semantics: both refuse paid orders and
	// re-validate shipping server-side.
	session := createCheckoutSessionHandler(orders, builder)
	r.POST("/checkout/create", session)
	r.POST("/checkout/retry", session)

	r.POST("/payments/webhook", webhookHandler(processor))
	r.GET("/orders/:reference", getOrderHandler(orders))

	return r
}

//
// ===== money helpers =====
//

var centsPerEuro = decimal.NewFromInt(100)

func eurosToCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, errors.New("negative amount")
	}
	return d.Mul(centsPerEuro).Round(0).IntPart(), nil
}

func centsToEuros(cents int64) string {
	return decimal.NewFromInt(cents).Div(centsPerEuro).StringFixed(2)
}

//
// ===== POST /shipping/begin =====
//

type beginShippingItem struct {
	Title     string `json:"title"`
	Price     string `json:"price" example:"19.99"`
	Qty       int    `json:"qty"`
	VariantID string `json:"variant_id"`
}

type beginShippingRequest struct {
	Items   []beginShippingItem `json:"items"`
	Country string              `json:"country"`
	Email   string              `json:"email"`
}

func beginShippingHandler(orders order.Repository, variants product.Repository, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req beginShippingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if len(req.Items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
			return
		}
		if req.Country == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "country is required"})
			return
		}

		reference := uuid.NewString()
		items := make([]order.Item, 0, len(req.Items))
		weightGrams := 0
		for _, it := range req.Items {
			if it.Title == "" || it.Qty <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "each item needs a title and a positive quantity"})
				return
			}
			cents, err := eurosToCents(it.Price)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item price"})
				return
			}
			item := order.Item{
				ID:             uuid.NewString(),
				OrderReference: reference,
				Title:          it.Title,
				UnitCents:      cents,
				Quantity:       it.Qty,
				VariantID:      it.VariantID,
			}
			if it.VariantID != "" {
				v, err := variants.GetVariant(c.Request.Context(), it.VariantID)
				if err != nil {
					if errors.Is(err, product.ErrNotFound) {
						c.JSON(http.StatusBadRequest, gin.H{"error": "unknown variant"})
						return
					}
					c.JSON(http.StatusInternalServerError, gin.H{"error": "variant lookup failed"})
					return
				}
				item.PromotionPercent = v.PromotionPercent
				weightGrams += v.WeightGrams * it.Qty
			}
			items = append(items, item)
		}

		o := &order.Order{Reference: reference, Email: req.Email, Status: order.StatusPending}
		if err := orders.Create(c.Request.Context(), o, items); err != nil {
			log.Printf("[shipping] create order failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create order"})
			return
		}

		params, err := bpost.StartRequest{
			AccountID:        cfg.BpostAccountID,
			CustomerCountry:  req.Country,
			OrderReference:   reference,
			OrderWeightGrams: weightGrams,
		}.Params(cfg.BpostPassphrase)
		if err != nil {
			log.Printf("[shipping] ref=%s sign failed: %v", reference, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not sign shipping request"})
			return
		}

		c.JSON(http.StatusCreated, params)
	}
}

//
// ===== GET|POST /shipping/confirm =====
//

const confirmAckHTML = `<!doctype html>
<html lang="fr"><head><meta charset="utf-8"><title>bkdesign</title></head>
<body><p>Frais de livraison enregistrés. Vous pouvez fermer cette fenêtre.</p>
<script>window.close();</script></body></html>`

// mergedParam reads a callback parameter from the body first, then the query
// string. The carrier mixes both depending on the delivery method screen.
// Precedence is by key presence: a key posted in the body shadows the query
// even when its value is empty.
func mergedParam(r *http.Request, key string) string {
	_ = r.ParseForm()
	if r.PostForm.Has(key) {
		return r.PostForm.Get(key)
	}
	return r.URL.Query().Get(key)
}

func confirmShippingHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		reference := mergedParam(c.Request, "orderReference")
		rawTotal := mergedParam(c.Request, "deliveryMethodPriceTotal")
		if reference == "" || rawTotal == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "orderReference and deliveryMethodPriceTotal are required"})
			return
		}
		cents, err := strconv.ParseInt(rawTotal, 10, 64)
		if err != nil || cents < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "deliveryMethodPriceTotal must be a non-negative integer"})
			return
		}

		if err := orders.SetShippingCost(c.Request.Context(), reference, cents); err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			log.Printf("[shipping] ref=%s confirm failed: %v", reference, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store shipping cost"})
			return
		}

		// Rendered inside the carrier's popup; the client polls separately.
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(confirmAckHTML))
	}
}

//
// ===== GET /shipping/status =====
//

func shippingStatusHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		reference := c.Query("orderReference")
		if reference == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "orderReference is required"})
			return
		}
		o, _, err := orders.GetByReference(c.Request.Context(), reference)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if o.ShippingCents == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "shipping cost not yet available"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"shipping_cost": centsToEuros(*o.ShippingCents)})
	}
}

//
// ===== POST /checkout/create | /checkout/retry =====
//

type checkoutRequest struct {
	OrderReference string `json:"order_reference"`
	Email          string `json:"email"`
}

func createCheckoutSessionHandler(orders order.Repository, builder *checkout.Builder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checkoutRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.OrderReference == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order_reference is required"})
			return
		}

		o, items, err := orders.GetByReference(c.Request.Context(), req.OrderReference)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if o.Status == order.StatusPaid {
			c.JSON(http.StatusConflict, gin.H{"error": "order already paid"})
			return
		}
		if req.Email != "" && req.Email != o.Email {
			if err := orders.UpdateEmail(c.Request.Context(), o.Reference, req.Email); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update email"})
				return
			}
			o.Email = req.Email
		}

		url, err := builder.CreateSession(c.Request.Context(), o, items)
		switch {
		case errors.Is(err, checkout.ErrMissingEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		case errors.Is(err, checkout.ErrShippingNotConfirmed):
			c.JSON(http.StatusConflict, gin.H{"error": "shipping cost not confirmed yet"})
		case err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": "session creation failed"})
		default:
			c.JSON(http.StatusOK, gin.H{"redirect_url": url})
		}
	}
}

//
// ===== POST /payments/webhook =====
//

func webhookHandler(processor *payments.Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Signature verification needs the exact raw bytes.
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		err = processor.Handle(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
		switch {
		case errors.Is(err, payments.ErrInvalidSignature), errors.Is(err, payments.ErrBadEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		case errors.Is(err, order.ErrNotFound):
			// Retrying cannot resolve an unknown reference; acknowledge it.
			log.Printf("[webhook] %v", err)
			c.JSON(http.StatusOK, gin.H{"received": true})
		case err != nil:
			log.Printf("[webhook] processing failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		default:
			c.JSON(http.StatusOK, gin.H{"received": true})
		}
	}
}

//
// ===== GET /orders/:reference =====
//

func getOrderHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, items, err := orders.GetByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}

		var shippingCents int64
		var shippingCost any
		if o.ShippingCents != nil {
			shippingCents = *o.ShippingCents
			shippingCost = centsToEuros(shippingCents)
		}

		outItems := make([]gin.H, 0, len(items))
		for _, it := range items {
			outItems = append(outItems, gin.H{
				"title":             it.Title,
				"unit_price":        centsToEuros(checkout.EffectiveUnitCents(it.UnitCents, it.PromotionPercent)),
				"quantity":          it.Quantity,
				"promotion_percent": it.PromotionPercent,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"reference":     o.Reference,
			"email":         o.Email,
			"status":        o.Status,
			"items":         outItems,
			"shipping_cost": shippingCost,
			"total":         centsToEuros(checkout.Total(items, shippingCents)),
		})
	}
}

func redirectHandler(target string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(http.StatusFound, target)
	}
}
