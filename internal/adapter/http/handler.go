package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"bitcoin-rates-service/internal/domain/model"
	"bitcoin-rates-service/internal/domain/ports"
	"bitcoin-rates-service/internal/domain/ratecalc"
	"bitcoin-rates-service/internal/metrics"
	"bitcoin-rates-service/internal/service"
	"bitcoin-rates-service/pkg/logger"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type Handler struct {
	service ports.RateService
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewHandler(service ports.RateService, log *logger.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		log:     log,
		metrics: metrics,
	}
}

// parseAmount returns fallback for an empty parameter.
func parseAmount(raw string, fallback float64) (float64, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func (h *Handler) GetRatesHandler(w http.ResponseWriter, r *http.Request) {
	h.metrics.RateRequestsTotal.Inc()

	snapshot, err := h.service.GetRates(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, snapshot)
}

func (h *Handler) GetQuoteHandler(w http.ResponseWriter, r *http.Request) {
	h.metrics.QuoteRequestsTotal.Inc()

	query := r.URL.Query()

	unitStr := query.Get("unit")
	if unitStr == "" {
		unitStr = ratecalc.BTC.String()
	}
	unit, err := ratecalc.ParseUnit(unitStr)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	amount, err := parseAmount(query.Get("amount"), 1)
	if err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, "invalid amount parameter")
		return
	}

	request := model.QuoteRequest{
		Currency:  model.ParseCurrency(r.PathValue("currency")),
		Unit:      unit,
		Direction: model.Direction(strings.ToLower(query.Get("direction"))),
		Amount:    amount,
	}

	quote, err := h.service.Quote(r.Context(), request)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, quote)
}

func (h *Handler) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	h.metrics.ConversionRequestsTotal.Inc()

	query := r.URL.Query()
	from := query.Get("from")
	to := query.Get("to")

	if from == "" || to == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing required parameters: from and to")
		return
	}

	amount, err := parseAmount(query.Get("amount"), 1)
	if err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, "invalid amount parameter")
		return
	}

	result, err := h.service.Convert(model.ConversionRequest{
		FromUnit: from,
		ToUnit:   to,
		Amount:   amount,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, result)
}

func (h *Handler) GetChangeHandler(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing required parameter: currency")
		return
	}

	change, err := h.service.Change(r.Context(), model.ParseCurrency(currency))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, change)
}

func (h *Handler) GetVolatilityHandler(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		h.sendErrorResponse(w, http.StatusBadRequest, "missing required parameter: currency")
		return
	}

	report, err := h.service.Volatility(r.Context(), model.ParseCurrency(currency))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.sendSuccessResponse(w, report)
}

func (h *Handler) GetCacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	h.sendSuccessResponse(w, h.service.CacheStats(r.Context()))
}

func (h *Handler) CleanupCacheHandler(w http.ResponseWriter, r *http.Request) {
	removed := h.service.CleanupCache(r.Context())
	h.sendSuccessResponse(w, map[string]int{"removed": removed})
}

// ClearCacheHandler reports persisted=false when only the memory tier could
// be emptied.
func (h *Handler) ClearCacheHandler(w http.ResponseWriter, r *http.Request) {
	persisted := h.service.ClearCache(r.Context())
	h.sendSuccessResponse(w, map[string]bool{"persisted": persisted})
}

func (h *Handler) sendSuccessResponse(w http.ResponseWriter, data interface{}) {
	response := Response{
		Success: true,
		Data:    data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := Response{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode error response", "error", err)
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	errorMessage := "internal server error"

	switch {
	case errors.Is(err, service.ErrInvalidCurrency):
		statusCode = http.StatusBadRequest
		errorMessage = "invalid currency"
	case errors.Is(err, ratecalc.ErrUnsupportedUnit):
		statusCode = http.StatusBadRequest
		errorMessage = "unsupported unit"
	case errors.Is(err, service.ErrInvalidDirection):
		statusCode = http.StatusBadRequest
		errorMessage = "invalid direction"
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, ratecalc.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		errorMessage = "invalid amount"
	case errors.Is(err, service.ErrRateNotFound):
		statusCode = http.StatusNotFound
		errorMessage = "exchange rate not found"
	case errors.Is(err, service.ErrNoHistory):
		statusCode = http.StatusNotFound
		errorMessage = "not enough rate history"
	case errors.Is(err, service.ErrExternalAPIFailure), errors.Is(err, service.ErrRatesUnavailable):
		statusCode = http.StatusServiceUnavailable
		errorMessage = "exchange rates unavailable"
	}

	h.log.Error("Service error", "error", err, "status_code", statusCode)
	h.sendErrorResponse(w, statusCode, errorMessage)
}
