package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"epn-webhook/internal/adapters/epnbz"
	"epn-webhook/internal/domain"
	"epn-webhook/internal/usecase/ingest"
)

type memStore struct {
	rows map[string]domain.CanonicalEvent
	err  error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]domain.CanonicalEvent)}
}

func (m *memStore) Upsert(_ context.Context, ev domain.CanonicalEvent) (domain.SavedEvent, error) {
	if m.err != nil {
		return domain.SavedEvent{}, m.err
	}
	key := ev.Partner + "|" + ev.UniqID + "|" + ev.OrderStatus
	result := domain.UpsertInserted
	if _, ok := m.rows[key]; ok {
		result = domain.UpsertUpdated
	}
	m.rows[key] = ev
	now := time.Now()
	return domain.SavedEvent{ID: int64(len(m.rows)), Result: result, CreatedAt: now, UpdatedAt: now}, nil
}

func (m *memStore) InitSchema(context.Context) error { return nil }

type silentNotifier struct{}

func (silentNotifier) Notify(context.Context, string, string) bool { return true }

type stubProcessor struct {
	receipt domain.Receipt
	err     error
}

func (s *stubProcessor) Process(context.Context, string, *domain.WebhookRequest) (domain.Receipt, error) {
	return s.receipt, s.err
}

func newEndToEndServer(store domain.EventRepo) *Server {
	svc := ingest.NewService("tokn", epnbz.PartnerID, store, silentNotifier{}, time.Second, zerolog.Nop())
	svc.RegisterPartner(epnbz.PartnerID, epnbz.New("", zerolog.Nop()))
	info := ServiceInfo{Name: "epn-webhook", Version: "1.0.0", SecretConfigured: true, EmailConfigured: true}
	return NewServer(svc, info, 0, zerolog.Nop())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	return body
}

func TestWebhookEndToEnd(t *testing.T) {
	store := newMemStore()
	router := newEndToEndServer(store).Router()

	payload := `{"click_id":"c1","order_number":"o1","order_status":"Confirmed","revenue":"25.5"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/tokn", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["database_status"] != "healthy" || body["status"] != "success" {
		t.Fatalf("неожиданное тело ответа: %v", body)
	}
	if body["order_status"] != "completed" {
		t.Fatalf("синоним Confirmed должен нормализоваться: %v", body["order_status"])
	}
	if body["uniq_id"] != "gen_o1_c1" {
		t.Fatalf("ожидали синтезированный uniq_id: %v", body["uniq_id"])
	}
	if _, ok := body["processing_time"].(string); !ok {
		t.Fatalf("processing_time должен быть строкой: %v", body["processing_time"])
	}
	if len(store.rows) != 1 {
		t.Fatalf("ожидали одну строку в хранилище, получили %d", len(store.rows))
	}
}

func TestWebhookWrongToken(t *testing.T) {
	router := newEndToEndServer(newMemStore()).Router()

	payload := `{"click_id":"c1","order_number":"o1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/wrong", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != "unauthorized" {
		t.Fatalf("ожидали код unauthorized, получили %v", body["code"])
	}
}

func TestWebhookGETQuery(t *testing.T) {
	store := newMemStore()
	router := newEndToEndServer(store).Router()

	req := httptest.NewRequest(http.MethodGet, "/webhook/tokn?click_id=c1&order_number=o1&order_status=pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["order_status"] != "pending" {
		t.Fatalf("GET-доставка должна разбирать query: %v", body)
	}
}

func TestWebhookMissingFieldResponse(t *testing.T) {
	router := newEndToEndServer(newMemStore()).Router()

	req := httptest.NewRequest(http.MethodPost, "/webhook/tokn", strings.NewReader(`{"order_number":"o1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400, получили %d", rec.Code)
	}
	body := decodeBody(t, rec)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "click_id") {
		t.Fatalf("ответ должен называть недостающее поле: %v", body)
	}
}

func TestWebhookErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
		body string
	}{
		"misconfigured": {err: domain.ErrSecretNotConfigured, code: http.StatusInternalServerError, body: "misconfigured"},
		"unauthorized":  {err: domain.ErrUnauthorized, code: http.StatusUnauthorized, body: "unauthorized"},
		"partner":       {err: domain.ErrPartnerUnknown, code: http.StatusNotFound, body: "partner_unknown"},
		"bad payload":   {err: domain.ErrBadPayload, code: http.StatusBadRequest, body: "invalid_request"},
		"missing field": {err: domain.ErrMissingField, code: http.StatusBadRequest, body: "invalid_request"},
		"store conn":    {err: domain.ErrConnection, code: http.StatusServiceUnavailable, body: "store_unavailable"},
		"store op":      {err: domain.ErrOperation, code: http.StatusServiceUnavailable, body: "store_unavailable"},
		"unexpected":    {err: errors.New("boom"), code: http.StatusInternalServerError, body: "internal_error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := NewServer(&stubProcessor{err: tc.err}, ServiceInfo{}, 0, zerolog.Nop())
			req := httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)
			if rec.Code != tc.code {
				t.Fatalf("ожидали %d, получили %d", tc.code, rec.Code)
			}
			if body := decodeBody(t, rec); body["code"] != tc.body {
				t.Fatalf("ожидали код %s, получили %v", tc.body, body["code"])
			}
		})
	}
}

func TestWebhookDuplicateBody(t *testing.T) {
	receipt := domain.Receipt{
		Partner:     "epn_bz",
		ClickID:     "c1",
		UniqID:      "u1",
		OrderStatus: "completed",
		Duplicate:   true,
		Elapsed:     12 * time.Millisecond,
	}
	srv := NewServer(&stubProcessor{receipt: receipt}, ServiceInfo{}, 0, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("дубликат должен подтверждаться 200, получили %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["database_status"] != "duplicate_handled" {
		t.Fatalf("ожидали duplicate_handled, получили %v", body["database_status"])
	}
	if body["processing_time"] != "0.012s" {
		t.Fatalf("ожидали processing_time=0.012s, получили %v", body["processing_time"])
	}
	if _, ok := body["revenue"]; ok {
		t.Fatalf("тело дубликата не должно содержать сумм")
	}
}

func TestWebhookBodyLimit(t *testing.T) {
	srv := NewServer(&stubProcessor{}, ServiceInfo{}, 16, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader(strings.Repeat("a", 64)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("сверхлимитное тело должно давать 400, получили %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	info := ServiceInfo{Name: "epn-webhook", Version: "1.0.0", SecretConfigured: true, EmailConfigured: false, TelegramConfigured: true}
	srv := NewServer(&stubProcessor{}, info, 0, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" || body["secret_configured"] != true || body["email_configured"] != false {
		t.Fatalf("неожиданное тело health: %v", body)
	}
}

func TestRootDoesNotLeakSecret(t *testing.T) {
	srv := newEndToEndServer(newMemStore())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "tokn") {
		t.Fatalf("корневой эндпоинт не должен раскрывать секрет")
	}
	body := decodeBody(t, rec)
	if body["secret_configured"] != true {
		t.Fatalf("ожидали признак настроенного секрета: %v", body)
	}
}
