// internal/handler/order_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"recharge-service/internal/domain"
	"recharge-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderHandler serves the user-facing recharge endpoints.
type OrderHandler struct {
	orderUC   *usecase.OrderUsecase
	balanceUC *usecase.BalanceUsecase
	logger    *zap.Logger
}

func NewOrderHandler(orderUC *usecase.OrderUsecase, balanceUC *usecase.BalanceUsecase, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderUC:   orderUC,
		balanceUC: balanceUC,
		logger:    logger,
	}
}

// maxOrderTTL bounds how long a caller may hold a decorated amount.
const maxOrderTTL = 24 * time.Hour

type createOrderRequest struct {
	UserID     int64           `json:"user_id"`
	Currency   string          `json:"currency"`
	Amount     decimal.Decimal `json:"amount"`
	TTLSeconds int64           `json:"ttl_seconds,omitempty"`
}

type createVIPOrderRequest struct {
	UserID   int64  `json:"user_id"`
	Currency string `json:"currency"`
	Months   int    `json:"months"`
}

type cancelOrderRequest struct {
	UserID int64 `json:"user_id"`
}

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID <= 0 {
		sendError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	// zero means the configured order ttl
	if req.TTLSeconds < 0 || req.TTLSeconds > int64(maxOrderTTL/time.Second) {
		sendError(w, http.StatusBadRequest, "ttl_seconds must be between 0 and 86400", nil)
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		sendDomainError(w, "unsupported currency", err)
		return
	}

	order, err := h.orderUC.CreateOrder(r.Context(), &domain.CreateOrderRequest{
		UserID:   req.UserID,
		Currency: currency,
		Amount:   req.Amount,
		TTL:      ttl,
	})
	if err != nil {
		h.logCreateFailure(req.UserID, err)
		sendDomainError(w, "failed to create order", err)
		return
	}

	sendSuccess(w, http.StatusCreated, "order created", toOrderResponse(order))
}

// CreateVIPOrder handles POST /api/v1/orders/vip
func (h *OrderHandler) CreateVIPOrder(w http.ResponseWriter, r *http.Request) {
	var req createVIPOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID <= 0 {
		sendError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		sendDomainError(w, "unsupported currency", err)
		return
	}

	order, err := h.orderUC.CreateVIPOrder(r.Context(), &domain.CreateVIPOrderRequest{
		UserID:   req.UserID,
		Currency: currency,
		Months:   req.Months,
	})
	if err != nil {
		h.logCreateFailure(req.UserID, err)
		sendDomainError(w, "failed to create vip order", err)
		return
	}

	sendSuccess(w, http.StatusCreated, "vip order created", toOrderResponse(order))
}

func (h *OrderHandler) logCreateFailure(userID int64, err error) {
	if statusFor(err) == http.StatusInternalServerError {
		h.logger.Error("failed to create order", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	h.logger.Debug("order rejected", zap.Int64("user_id", userID), zap.Error(err))
}

// GetOrder handles GET /api/v1/orders/{order_id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderUC.GetOrder(r.Context(), chi.URLParam(r, "order_id"))
	if err != nil {
		sendDomainError(w, "failed to get order", err)
		return
	}
	sendSuccess(w, http.StatusOK, "order retrieved", toOrderResponse(order))
}

// GetActiveOrder handles GET /api/v1/users/{user_id}/active-order. Data is
// null when the user has no live order.
func (h *OrderHandler) GetActiveOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid user id", err)
		return
	}
	order, err := h.orderUC.GetActiveOrder(r.Context(), userID)
	if err != nil {
		sendDomainError(w, "failed to get active order", err)
		return
	}
	sendSuccess(w, http.StatusOK, "active order retrieved", toOrderResponse(order))
}

// CancelOrder handles POST /api/v1/orders/{order_id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	orderID := chi.URLParam(r, "order_id")

	cancelled, err := h.orderUC.CancelOrder(r.Context(), orderID, req.UserID)
	if err != nil {
		sendDomainError(w, "failed to cancel order", err)
		return
	}
	if !cancelled {
		sendError(w, http.StatusConflict, "order is no longer pending", nil)
		return
	}
	sendSuccess(w, http.StatusOK, "order cancelled", map[string]interface{}{
		"order_id":  orderID,
		"cancelled": true,
	})
}

// GetBalance handles GET /api/v1/users/{user_id}/balance
func (h *OrderHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid user id", err)
		return
	}
	bal, err := h.balanceUC.Balance(r.Context(), userID)
	if err != nil {
		sendDomainError(w, "failed to get balance", err)
		return
	}
	sendSuccess(w, http.StatusOK, "balance retrieved", map[string]interface{}{
		"user_id":      bal.UserID,
		"balance":      bal.Balance,
		"total_earned": bal.TotalEarned,
		"total_spent":  bal.TotalSpent,
	})
}

// GetBalanceLogs handles GET /api/v1/users/{user_id}/balance/logs?limit=
func (h *OrderHandler) GetBalanceLogs(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid user id", err)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			sendError(w, http.StatusBadRequest, "invalid limit", errors.New("limit must be an integer"))
			return
		}
	}

	logs, err := h.balanceUC.Logs(r.Context(), userID, limit)
	if err != nil {
		sendDomainError(w, "failed to get balance logs", err)
		return
	}
	out := make([]balanceLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, toBalanceLogResponse(l))
	}
	sendSuccess(w, http.StatusOK, "balance logs retrieved", out)
}

// GetVIP handles GET /api/v1/users/{user_id}/vip
func (h *OrderHandler) GetVIP(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid user id", err)
		return
	}
	m, err := h.balanceUC.VIP(r.Context(), userID)
	if err != nil {
		sendDomainError(w, "failed to get vip membership", err)
		return
	}

	data := map[string]interface{}{
		"user_id": userID,
		"active":  m.IsActive(h.orderUC.Now()),
	}
	if m != nil {
		data["expires_at"] = m.ExpiresAt
	}
	sendSuccess(w, http.StatusOK, "vip membership retrieved", data)
}
