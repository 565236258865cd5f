// internal/handler/admin_handler.go
package handler

import (
	"net/http"
	"strings"

	"recharge-service/internal/domain"
	"recharge-service/internal/exchange"
	"recharge-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdminHandler serves operator endpoints. Authentication happens in the
// router middleware.
type AdminHandler struct {
	rates        *exchange.Provider
	settingsUC   *usecase.SettingsUsecase
	statsUC      *usecase.StatsUsecase
	balanceUC    *usecase.BalanceUsecase
	settlementUC *usecase.SettlementUsecase
	logger       *zap.Logger
}

func NewAdminHandler(
	rates *exchange.Provider,
	settingsUC *usecase.SettingsUsecase,
	statsUC *usecase.StatsUsecase,
	balanceUC *usecase.BalanceUsecase,
	settlementUC *usecase.SettlementUsecase,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		rates:        rates,
		settingsUC:   settingsUC,
		statsUC:      statsUC,
		balanceUC:    balanceUC,
		settlementUC: settlementUC,
		logger:       logger,
	}
}

type setRateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

type feedRequest struct {
	Enabled bool `json:"enabled"`
}

type settingRequest struct {
	Value string `json:"value"`
}

type adjustBalanceRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ChangeType  string          `json:"change_type"`
	Description string          `json:"description"`
	OperatorID  *int64          `json:"operator_id"`
}

type completeOrderRequest struct {
	TxHash string              `json:"tx_hash"`
	Amount decimal.NullDecimal `json:"amount"`
}

// ============================================================================
// RATES
// ============================================================================

// GetRates handles GET /api/v1/admin/rates
func (h *AdminHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	rates := make([]*domain.RateInfo, 0, len(domain.SupportedCurrencies))
	for _, c := range domain.SupportedCurrencies {
		info, err := h.rates.RateInfo(r.Context(), c)
		if err != nil {
			sendDomainError(w, "failed to get rates", err)
			return
		}
		rates = append(rates, info)
	}
	sendSuccess(w, http.StatusOK, "rates retrieved", map[string]interface{}{
		"feed_enabled": h.rates.FeedEnabled(),
		"rates":        rates,
	})
}

// SetRate handles PUT /api/v1/admin/rates/{currency}
func (h *AdminHandler) SetRate(w http.ResponseWriter, r *http.Request) {
	currency, err := domain.ParseCurrency(chi.URLParam(r, "currency"))
	if err != nil {
		sendDomainError(w, "unsupported currency", err)
		return
	}
	var req setRateRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := h.rates.SetFixedRate(r.Context(), currency, req.Rate); err != nil {
		sendDomainError(w, "failed to set rate", err)
		return
	}
	h.sendRate(w, r, currency, "rate updated")
}

// ClearRate handles DELETE /api/v1/admin/rates/{currency}
func (h *AdminHandler) ClearRate(w http.ResponseWriter, r *http.Request) {
	currency, err := domain.ParseCurrency(chi.URLParam(r, "currency"))
	if err != nil {
		sendDomainError(w, "unsupported currency", err)
		return
	}
	if err := h.rates.ClearFixedRate(r.Context(), currency); err != nil {
		sendDomainError(w, "failed to clear rate", err)
		return
	}
	h.sendRate(w, r, currency, "rate override cleared")
}

// SetFeed handles POST /api/v1/admin/rates/feed
func (h *AdminHandler) SetFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.rates.EnableFeed(r.Context(), req.Enabled); err != nil {
		sendDomainError(w, "failed to toggle price feed", err)
		return
	}
	h.logger.Info("price feed toggled", zap.Bool("enabled", req.Enabled))
	sendSuccess(w, http.StatusOK, "price feed updated", map[string]interface{}{
		"feed_enabled": h.rates.FeedEnabled(),
	})
}

// RefreshRates handles POST /api/v1/admin/rates/refresh
func (h *AdminHandler) RefreshRates(w http.ResponseWriter, r *http.Request) {
	h.rates.ClearCache(r.Context())
	h.GetRates(w, r)
}

func (h *AdminHandler) sendRate(w http.ResponseWriter, r *http.Request, currency domain.Currency, message string) {
	info, err := h.rates.RateInfo(r.Context(), currency)
	if err != nil {
		sendDomainError(w, "failed to get rate", err)
		return
	}
	sendSuccess(w, http.StatusOK, message, info)
}

// ============================================================================
// STATS AND SETTINGS
// ============================================================================

// GetStats handles GET /api/v1/admin/stats?period=
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	period, ok := domain.ParseStatsPeriod(r.URL.Query().Get("period"))
	if !ok {
		sendError(w, http.StatusBadRequest, "period must be one of day, yesterday, week, month, year", nil)
		return
	}
	stats, err := h.statsUC.Stats(r.Context(), period)
	if err != nil {
		sendDomainError(w, "failed to compute stats", err)
		return
	}
	sendSuccess(w, http.StatusOK, "stats retrieved", stats)
}

// GetSettings handles GET /api/v1/admin/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.settingsUC.All(r.Context())
	if err != nil {
		sendDomainError(w, "failed to get settings", err)
		return
	}
	sendSuccess(w, http.StatusOK, "settings retrieved", all)
}

// GetSetting handles GET /api/v1/admin/settings/{key}
func (h *AdminHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.settingsUC.Get(r.Context(), key)
	if err != nil {
		sendDomainError(w, "failed to get setting", err)
		return
	}
	sendSuccess(w, http.StatusOK, "setting retrieved", map[string]string{"key": key, "value": value})
}

// PutSetting handles PUT /api/v1/admin/settings/{key}
func (h *AdminHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req settingRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.settingsUC.Set(r.Context(), key, req.Value); err != nil {
		sendDomainError(w, "failed to update setting", err)
		return
	}
	value, err := h.settingsUC.Get(r.Context(), key)
	if err != nil {
		sendDomainError(w, "failed to get setting", err)
		return
	}
	sendSuccess(w, http.StatusOK, "setting updated", map[string]string{"key": key, "value": value})
}

// ============================================================================
// BALANCES AND ORDERS
// ============================================================================

// AdjustBalance handles POST /api/v1/admin/users/{user_id}/balance. Without
// an explicit change_type the sign of amount picks credit or debit.
func (h *AdminHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid user id", err)
		return
	}
	var req adjustBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	changeType := domain.ChangeType(strings.TrimSpace(req.ChangeType))
	if changeType == "" {
		changeType = domain.ChangeTypeAdminCredit
		if req.Amount.IsNegative() {
			changeType = domain.ChangeTypeAdminDebit
		}
	}

	log, err := h.balanceUC.Adjust(r.Context(), userID, req.Amount, changeType, req.Description, req.OperatorID)
	if err != nil {
		sendDomainError(w, "failed to adjust balance", err)
		return
	}
	sendSuccess(w, http.StatusOK, "balance adjusted", toBalanceLogResponse(log))
}

// CompleteOrder handles POST /api/v1/admin/orders/{order_id}/complete
func (h *AdminHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")
	var req completeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	amount := decimal.Zero
	if req.Amount.Valid {
		amount = req.Amount.Decimal
	}

	res, err := h.settlementUC.CompleteOrder(r.Context(), orderID, req.TxHash, amount)
	if err != nil {
		sendDomainError(w, "failed to complete order", err)
		return
	}
	if !res.Applied {
		sendError(w, http.StatusConflict, "order is no longer pending", nil)
		return
	}

	h.logger.Info("order completed manually",
		zap.String("order_id", orderID),
		zap.String("tx_hash", req.TxHash))

	data := map[string]interface{}{
		"order":         toOrderResponse(res.Order),
		"balance_after": res.BalanceAfter,
	}
	if res.VIPExpiresAt != nil {
		data["vip_expires_at"] = res.VIPExpiresAt
	}
	sendSuccess(w, http.StatusOK, "order completed", data)
}
