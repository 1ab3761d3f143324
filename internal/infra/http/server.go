// Package http собирает HTTP-поверхность сервиса приёма вебхуков.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"epn-webhook/internal/domain"
)

const defaultMaxBodyBytes = 1 << 20

// ServiceInfo описывает нечувствительное состояние конфигурации,
// отдаваемое служебными эндпоинтами.
type ServiceInfo struct {
	Name               string
	Version            string
	SecretConfigured   bool
	EmailConfigured    bool
	TelegramConfigured bool
}

// Server обслуживает приём вебхуков и служебные эндпоинты.
type Server struct {
	processor domain.WebhookProcessor
	info      ServiceInfo
	maxBody   int64
	log       zerolog.Logger
}

// NewServer создаёт HTTP-поверхность.
func NewServer(processor domain.WebhookProcessor, info ServiceInfo, maxBody int64, logger zerolog.Logger) *Server {
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Server{
		processor: processor,
		info:      info,
		maxBody:   maxBody,
		log:       logger.With().Str("component", "http").Logger(),
	}
}

// Router собирает chi.Router с базовыми middlewares.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/webhook/{secret}", s.handleWebhook)
	r.Get("/webhook/{secret}", s.handleWebhook)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type webhookAccepted struct {
	Status         string  `json:"status"`
	Partner        string  `json:"partner"`
	ClickID        string  `json:"click_id"`
	UniqID         string  `json:"uniq_id"`
	OrderStatus    string  `json:"order_status"`
	Revenue        float64 `json:"revenue"`
	CommissionFee  float64 `json:"commission_fee"`
	ProcessingTime string  `json:"processing_time"`
	Message        string  `json:"message"`
	DatabaseStatus string  `json:"database_status"`
}

type webhookDuplicate struct {
	Status         string `json:"status"`
	Partner        string `json:"partner"`
	ClickID        string `json:"click_id"`
	UniqID         string `json:"uniq_id"`
	OrderStatus    string `json:"order_status"`
	ProcessingTime string `json:"processing_time"`
	Message        string `json:"message"`
	DatabaseStatus string `json:"database_status"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.log.Warn().Err(err).Msg("http: тело запроса не прочитано")
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read request body")
		return
	}

	req := &domain.WebhookRequest{
		Method:      r.Method,
		ContentType: r.Header.Get("Content-Type"),
		UserAgent:   r.Header.Get("User-Agent"),
		ClientIP:    clientIP(r),
		Query:       r.URL.Query(),
		Body:        body,
	}

	receipt, err := s.processor.Process(r.Context(), secret, req)
	if err != nil {
		s.writeProcessError(w, err)
		return
	}

	if receipt.Duplicate {
		writeJSON(w, http.StatusOK, webhookDuplicate{
			Status:         "success",
			Partner:        receipt.Partner,
			ClickID:        receipt.ClickID,
			UniqID:         receipt.UniqID,
			OrderStatus:    receipt.OrderStatus,
			ProcessingTime: elapsedString(receipt.Elapsed),
			Message:        "Duplicate webhook - already processed",
			DatabaseStatus: "duplicate_handled",
		})
		return
	}

	writeJSON(w, http.StatusOK, webhookAccepted{
		Status:         "success",
		Partner:        receipt.Partner,
		ClickID:        receipt.ClickID,
		UniqID:         receipt.UniqID,
		OrderStatus:    receipt.OrderStatus,
		Revenue:        receipt.Revenue,
		CommissionFee:  receipt.CommissionFee,
		ProcessingTime: elapsedString(receipt.Elapsed),
		Message:        "Webhook processed successfully",
		DatabaseStatus: "healthy",
	})
}

// writeProcessError переводит доменную классификацию ошибки в HTTP-статус.
// 503 сигнализирует партнёру повторить доставку, 4xx - исправить запрос.
func (s *Server) writeProcessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSecretNotConfigured):
		writeError(w, http.StatusInternalServerError, "misconfigured", "webhook secret is not configured")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid secret token")
	case errors.Is(err, domain.ErrPartnerUnknown):
		writeError(w, http.StatusNotFound, "partner_unknown", "partner not found")
	case errors.Is(err, domain.ErrMissingField), errors.Is(err, domain.ErrBadPayload):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrOperation):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporary storage failure, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "healthy",
		"service":             s.info.Name,
		"version":             s.info.Version,
		"secret_configured":   s.info.SecretConfigured,
		"email_configured":    s.info.EmailConfigured,
		"telegram_configured": s.info.TelegramConfigured,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     s.info.Name,
		"version":     s.info.Version,
		"description": "Order status webhook receiver for the EPN.bz affiliate network",
		"uniqueness":  "one row per (partner, uniq_id, order_status); redelivery updates the row in place",
		"error_handling": map[string]string{
			"database_unavailable": "503, retry later, on-call alerted",
			"duplicate":            "200, database_status=duplicate_handled",
			"invalid_payload":      "400",
			"invalid_token":        "401",
		},
		"endpoints": map[string]string{
			"webhook": "POST|GET /webhook/{secret}",
			"health":  "GET /health",
		},
		"epn_bz_fields": map[string]any{
			"required": []string{"click_id", "order_number"},
			"optional": []string{
				"uniq_id", "order_status", "offer_name", "offer_type", "offer_id",
				"type_id", "sub", "sub2", "sub3", "sub4", "sub5",
				"revenue", "commission_fee", "currency",
				"ip", "ipv6", "user_agent", "click_time", "time_of_order",
			},
		},
		"secret_configured": s.info.SecretConfigured,
	})
}

// clientIP выбирает первый адрес из X-Forwarded-For, иначе RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func elapsedString(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
