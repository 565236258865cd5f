// internal/handler/response.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"recharge-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Response helpers
func sendSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if err != nil {
		response["error"] = err.Error()
	}
	json.NewEncoder(w).Encode(response)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrUnknownSetting):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOrderOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrActiveOrderExists), errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAllocationExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountTooSmall),
		errors.Is(err, domain.ErrAmountTooLarge),
		errors.Is(err, domain.ErrInvalidMonths),
		errors.Is(err, domain.ErrUnsupportedCurrency),
		errors.Is(err, domain.ErrInvalidRate),
		errors.Is(err, domain.ErrInvalidSetting),
		errors.Is(err, domain.ErrMissingTxHash),
		errors.Is(err, domain.ErrMalformedAddress),
		errors.Is(err, domain.ErrFeedNotConfigured):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func sendDomainError(w http.ResponseWriter, message string, err error) {
	sendError(w, statusFor(err), message, err)
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("user_id must be a positive integer")
	}
	return id, nil
}

type orderResponse struct {
	OrderID        string             `json:"order_id"`
	UserID         int64              `json:"user_id"`
	OrderType      domain.OrderType   `json:"order_type"`
	Currency       domain.Currency    `json:"currency"`
	BaseAmount     decimal.Decimal    `json:"base_amount"`
	Amount         decimal.Decimal    `json:"amount"`
	ReceivedAmount *decimal.Decimal   `json:"received_amount,omitempty"`
	CreditValue    decimal.Decimal    `json:"credit_value"`
	VIPMonths      int                `json:"vip_months,omitempty"`
	Status         domain.OrderStatus `json:"status"`
	WalletAddress  string             `json:"wallet_address"`
	TxHash         *string            `json:"tx_hash,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ExpiresAt      time.Time          `json:"expires_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

func toOrderResponse(o *domain.Order) *orderResponse {
	if o == nil {
		return nil
	}
	resp := &orderResponse{
		OrderID:       o.OrderID,
		UserID:        o.UserID,
		OrderType:     o.Type,
		Currency:      o.Currency,
		BaseAmount:    o.BaseAmount,
		Amount:        o.Amount,
		CreditValue:   o.CreditValue,
		VIPMonths:     o.VIPMonths,
		Status:        o.Status,
		WalletAddress: o.WalletAddress,
		TxHash:        o.TxHash,
		CreatedAt:     o.CreatedAt,
		ExpiresAt:     o.ExpiresAt,
		CompletedAt:   o.CompletedAt,
	}
	if o.ReceivedAmount.Valid {
		received := o.ReceivedAmount.Decimal
		resp.ReceivedAmount = &received
	}
	return resp
}

type balanceLogResponse struct {
	ID            int64             `json:"id"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	ChangeType    domain.ChangeType `json:"change_type"`
	Description   string            `json:"description,omitempty"`
	OperatorID    *int64            `json:"operator_id,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func toBalanceLogResponse(l *domain.BalanceLog) balanceLogResponse {
	return balanceLogResponse{
		ID:            l.ID,
		Amount:        l.Amount,
		BalanceBefore: l.BalanceBefore,
		BalanceAfter:  l.BalanceAfter,
		ChangeType:    l.ChangeType,
		Description:   l.Description,
		OperatorID:    l.OperatorID,
		Reference:     l.Reference,
		CreatedAt:     l.CreatedAt,
	}
}
