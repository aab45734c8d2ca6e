package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	invoiceapp "github.com/bloomwire/ordercore/internal/application/invoice"
	orderapp "github.com/bloomwire/ordercore/internal/application/order"
	walletapp "github.com/bloomwire/ordercore/internal/application/wallet"
	"github.com/bloomwire/ordercore/internal/domain/buyer"
	"github.com/bloomwire/ordercore/internal/domain/catalog"
	"github.com/bloomwire/ordercore/internal/domain/invoice"
	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/order"
	"github.com/bloomwire/ordercore/internal/domain/payment"
	"github.com/bloomwire/ordercore/internal/domain/pricing"
	"github.com/bloomwire/ordercore/internal/observability"
	"github.com/bloomwire/ordercore/internal/observability/logctx"
)

// Handler binds the application services to the HTTP surface.
type Handler struct {
	orders   *orderapp.Service
	wallet   *walletapp.Service
	invoices *invoiceapp.Service
	log      observability.Logger
}

func NewHandler(
	orders *orderapp.Service,
	wallet *walletapp.Service,
	invoices *invoiceapp.Service,
	tel observability.Observability,
) *Handler {
	return &Handler{
		orders:   orders,
		wallet:   wallet,
		invoices: invoices,
		log:      tel.Logger().With(observability.F("component", "httpapi")),
	}
}

// Router assembles the gin engine. The payment callback stays outside the
// authenticated group: the gateway is not a token-bearing caller.
func (h *Handler) Router(tel observability.Observability, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Observability(tel))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/api/payments/callback", h.paymentCallback)

	api := r.Group("/api", Auth(jwtSecret))
	{
		api.POST("/orders/calculate-price", h.calculatePrice)
		api.POST("/orders", h.createOrder)
		api.GET("/orders", h.listOrders)
		api.GET("/orders/:id", h.getOrder)

		api.GET("/wallet", h.balances)
		api.GET("/wallet/transactions", h.walletTransactions)
		api.GET("/credits/transactions", h.creditTransactions)
		api.POST("/wallet/top-ups", h.createTopUp)

		api.GET("/invoices/:id", h.getInvoice)
		api.GET("/invoices/:id/pdf", h.downloadInvoice)
	}

	admin := api.Group("", RequireAdmin())
	{
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.POST("/orders/:id/invoice", h.generateInvoice)
		admin.POST("/admin/deposits", h.adminDeposit)
	}

	return r
}

// --- orders ---

type itemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type calculatePriceRequest struct {
	Items      []itemRequest `json:"items" binding:"required"`
	UseCredits bool          `json:"use_credits"`
}

func toItemInputs(items []itemRequest) []pricing.ItemInput {
	inputs := make([]pricing.ItemInput, 0, len(items))
	for _, it := range items {
		inputs = append(inputs, pricing.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return inputs
}

func (h *Handler) calculatePrice(c *gin.Context) {
	var req calculatePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	ident := identityFrom(c)

	quote, err := h.orders.CalculatePrice(c.Request.Context(), ident.UserID, toItemInputs(req.Items), req.UseCredits)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quoteResponse(quote))
}

type createOrderRequest struct {
	Items           []itemRequest `json:"items" binding:"required"`
	ShippingAddress string        `json:"shipping_address" binding:"required"`
	PaymentMethod   string        `json:"payment_method"`
	Notes           string        `json:"notes"`
	UseCredits      bool          `json:"use_credits"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	ident := identityFrom(c)

	o, err := h.orders.CreateOrder(c.Request.Context(), ident.UserID, orderapp.CreateOrderInput{
		Items:           toItemInputs(req.Items),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		UseCredits:      req.UseCredits,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderResponse(o))
}

func (h *Handler) listOrders(c *gin.Context) {
	ident := identityFrom(c)
	orders, err := h.orders.List(c.Request.Context(), ident.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (h *Handler) getOrder(c *gin.Context) {
	o, err := h.orders.Get(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(o))
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	target, ok := order.ParseStatus(req.Status)
	if !ok {
		abortError(c, http.StatusBadRequest, "INVALID_STATUS", "unknown order status "+req.Status)
		return
	}

	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), target, req.Note)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(o))
}

// --- wallet ---

func (h *Handler) balances(c *gin.Context) {
	b, err := h.wallet.Balances(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet_balance": b.Wallet.StringFixed(2),
		"credit_balance": b.Credit.StringFixed(2),
	})
}

func (h *Handler) walletTransactions(c *gin.Context) {
	txs, err := h.wallet.WalletTransactions(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactionResponses(txs)})
}

func (h *Handler) creditTransactions(c *gin.Context) {
	txs, err := h.wallet.CreditTransactions(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactionResponses(txs)})
}

type topUpRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) createTopUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_AMOUNT", "amount is not a decimal number")
		return
	}

	t, err := h.wallet.CreateTopUp(c.Request.Context(), identityFrom(c).UserID, amount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment_order_id": t.PaymentOrderID,
		"redirect_url":     t.RedirectURL,
	})
}

type adminDepositRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
}

func (h *Handler) adminDeposit(c *gin.Context) {
	var req adminDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		abortError(c, http.StatusBadRequest, "INVALID_AMOUNT", "amount is not a decimal number")
		return
	}

	tx, err := h.wallet.AdminDeposit(c.Request.Context(), req.UserID, amount, req.Description)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transactionResponse(tx))
}

// paymentCallback always acknowledges with 200 so the gateway stops
// redelivering; rejecting a payload would only retry what the service has
// already classified and logged.
func (h *Handler) paymentCallback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		logctx.FromOr(c.Request.Context(), h.log).Warn("payment callback body read failed",
			observability.F("error", err.Error()))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	if err := h.wallet.HandleCallback(c.Request.Context(), raw); err != nil {
		logctx.FromOr(c.Request.Context(), h.log).Error("payment callback failed",
			observability.F("error", err.Error()))
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// --- invoices ---

func (h *Handler) generateInvoice(c *gin.Context) {
	inv, err := h.invoices.Generate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoiceResponse(inv))
}

func (h *Handler) getInvoice(c *gin.Context) {
	inv, err := h.invoices.Get(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoiceResponse(inv))
}

func (h *Handler) downloadInvoice(c *gin.Context) {
	pdf, err := h.invoices.Download(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="invoice.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// --- responses ---

func quoteResponse(q *pricing.Quote) gin.H {
	lines := make([]gin.H, 0, len(q.Lines))
	for _, l := range q.Lines {
		lines = append(lines, gin.H{
			"product_id":   l.Product.ID,
			"product_name": l.Product.Name,
			"quantity":     l.Quantity,
			"unit_price":   l.Product.UnitPrice.StringFixed(2),
			"line_total":   l.LineTotal.StringFixed(2),
		})
	}
	return gin.H{
		"lines":          lines,
		"total_stems":    q.TotalStems,
		"subtotal":       q.Subtotal.StringFixed(2),
		"discount_pct":   q.DiscountPct,
		"discount":       q.Discount.StringFixed(2),
		"after_discount": q.AfterDiscount.StringFixed(2),
		"credits_used":   q.CreditsUsed.StringFixed(2),
		"total":          q.Total.StringFixed(2),
	}
}

func orderResponse(o *order.Order) gin.H {
	items := make([]gin.H, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, gin.H{
			"product_id":   it.ProductID,
			"product_name": it.ProductName,
			"quantity":     it.Quantity,
			"unit_price":   it.UnitPrice.StringFixed(2),
			"line_total":   it.LineTotal.StringFixed(2),
		})
	}
	return gin.H{
		"id":               o.ID,
		"number":           o.Number,
		"user_id":          o.UserID,
		"status":           string(o.Status),
		"subtotal":         o.Subtotal.StringFixed(2),
		"discount":         o.Discount.StringFixed(2),
		"credits_used":     o.CreditsUsed.StringFixed(2),
		"total":            o.Total.StringFixed(2),
		"shipping_address": o.ShippingAddress,
		"payment_method":   o.PaymentMethod,
		"notes":            o.Notes,
		"items":            items,
		"created_at":       o.CreatedAt.Format(time.RFC3339),
		"updated_at":       o.UpdatedAt.Format(time.RFC3339),
	}
}

func transactionResponse(tx *ledger.Transaction) gin.H {
	return gin.H{
		"id":             tx.ID,
		"ledger":         string(tx.Ledger),
		"kind":           string(tx.Kind),
		"amount":         tx.Amount.StringFixed(2),
		"balance_before": tx.BalanceBefore.StringFixed(2),
		"balance_after":  tx.BalanceAfter.StringFixed(2),
		"description":    tx.Description,
		"reference_id":   tx.ReferenceID,
		"created_at":     tx.CreatedAt.Format(time.RFC3339),
	}
}

func transactionResponses(txs []*ledger.Transaction) []gin.H {
	out := make([]gin.H, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse(tx))
	}
	return out
}

func invoiceResponse(inv *invoice.Invoice) gin.H {
	items := make([]gin.H, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, gin.H{
			"description": it.Description,
			"quantity":    it.Quantity,
			"unit_price":  it.UnitPrice.StringFixed(2),
			"subtotal":    it.Subtotal.StringFixed(2),
			"vat":         it.VAT.StringFixed(2),
			"total":       it.Total.StringFixed(2),
		})
	}
	return gin.H{
		"id":           inv.ID,
		"number":       inv.Number,
		"order_id":     inv.OrderID,
		"user_id":      inv.UserID,
		"buyer_name":   inv.BuyerName,
		"buyer_tax_id": inv.BuyerTaxID,
		"status":       string(inv.Status),
		"subtotal":     inv.Subtotal.StringFixed(2),
		"vat":          inv.VAT.StringFixed(2),
		"total":        inv.Total.StringFixed(2),
		"items":        items,
		"issued_at":    inv.IssuedAt.Format(time.RFC3339),
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		stockErr      *catalog.InsufficientStockError
		transitionErr *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &stockErr):
		abortError(c, http.StatusConflict, "INSUFFICIENT_STOCK", stockErr.Error())
	case errors.As(err, &transitionErr):
		abortError(c, http.StatusConflict, "INVALID_TRANSITION", transitionErr.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		abortError(c, http.StatusConflict, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, invoice.ErrConflict):
		abortError(c, http.StatusConflict, "ALREADY_ISSUED", err.Error())
	case errors.Is(err, order.ErrForbidden), errors.Is(err, invoice.ErrForbidden):
		abortError(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, invoice.ErrNotFound),
		errors.Is(err, payment.ErrNotFound),
		errors.Is(err, buyer.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound):
		abortError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, catalog.ErrInvalidQuantity),
		errors.Is(err, order.ErrNoItems),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, payment.ErrInvalidAmount):
		abortError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		logctx.FromOr(c.Request.Context(), h.log).Error("request failed",
			observability.F("error", err.Error()))
		abortError(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
