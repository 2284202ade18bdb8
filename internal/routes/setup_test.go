package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/givetag/givetag/internal/config"
	"github.com/givetag/givetag/internal/logging"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	cfg := config.Config{
		AppName:           "GiveTag",
		AppEnv:            "development",
		SessionSecret:     "test-secret",
		SessionTTL:        time.Hour,
		ChallengeTTL:      10 * time.Minute,
		PendingPaymentTTL: time.Hour,
	}
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	decoded := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func issueTag(t *testing.T, app *fiber.App, code, pin string) {
	t.Helper()
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/tags", map[string]any{
		"code":         code,
		"display_name": "Test Beneficiary",
		"pin":          pin,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("issue tag %s: status %d body %v", code, status, body)
	}
}

func loginPIN(t *testing.T, app *fiber.App, code, pin string) string {
	t.Helper()
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/auth/pin", map[string]any{
		"tag_code": code,
		"pin":      pin,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("pin login: status %d body %v", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("no session token in %v", body)
	}
	return token
}

func TestDonationFlow(t *testing.T) {
	app := newTestApp(t)
	issueTag(t, app, "CT001", "4321")

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/donate", map[string]any{
		"tag_code":     "ct001",
		"amount_cents": 5000,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("donate: status %d body %v", status, body)
	}
	if body["balance_cents"] != float64(5000) {
		t.Fatalf("balance %v, want 5000", body["balance_cents"])
	}

	// The balance view requires a session scoped to the tag.
	status, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/tag/CT001", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated summary: status %d, want 401", status)
	}

	token := loginPIN(t, app, "CT001", "4321")
	status, body = doJSON(t, app, fiber.MethodGet, "/api/v1/tag/CT001", nil, map[string]string{
		fiber.HeaderAuthorization: "Bearer " + token,
	})
	if status != http.StatusOK {
		t.Fatalf("summary: status %d body %v", status, body)
	}
	if body["balance_cents"] != float64(5000) {
		t.Fatalf("summary balance %v, want 5000", body["balance_cents"])
	}
}

func TestTransferFlowRequiresMatchingSession(t *testing.T) {
	app := newTestApp(t)
	issueTag(t, app, "CT001", "4321")
	issueTag(t, app, "CT002", "9999")

	if status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/donate", map[string]any{
		"tag_code": "CT001", "amount_cents": 15000,
	}, nil); status != http.StatusCreated {
		t.Fatalf("seed donation: status %d body %v", status, body)
	}

	// A session for CT002 cannot debit CT001.
	otherToken := loginPIN(t, app, "CT002", "9999")
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/transfer", map[string]any{
		"from_code": "CT001", "to_code": "CT002", "amount_cents": 1000,
	}, map[string]string{fiber.HeaderAuthorization: "Bearer " + otherToken})
	if status != http.StatusForbidden {
		t.Fatalf("foreign session transfer: status %d, want 403", status)
	}

	token := loginPIN(t, app, "CT001", "4321")
	authz := map[string]string{fiber.HeaderAuthorization: "Bearer " + token}

	// Overdraw fails and leaves balances alone.
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/transfer", map[string]any{
		"from_code": "CT001", "to_code": "CT002", "amount_cents": 20000,
	}, authz)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("overdraw: status %d body %v", status, body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/transfer", map[string]any{
		"from_code": "CT001", "to_code": "CT002", "amount_cents": 1500,
	}, authz)
	if status != http.StatusCreated {
		t.Fatalf("transfer: status %d body %v", status, body)
	}
	if body["from_balance_cents"] != float64(13500) || body["to_balance_cents"] != float64(1500) {
		t.Fatalf("unexpected balances: %v", body)
	}
}

func TestPendingDonationConfirmationIsIdempotentOverHTTP(t *testing.T) {
	app := newTestApp(t)
	issueTag(t, app, "CT003", "4321")

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/donations/initiate", map[string]any{
		"tag_code": "CT003", "amount_cents": 3000, "provider": "card",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("initiate: status %d body %v", status, body)
	}
	ref, _ := body["external_ref"].(string)
	if ref == "" {
		t.Fatalf("no external_ref in %v", body)
	}

	confirm := func() (int, map[string]any) {
		return doJSON(t, app, fiber.MethodPost, "/api/v1/payments/confirm", map[string]any{
			"external_ref": ref, "tag_code": "CT003", "amount_cents": 3000,
		}, nil)
	}

	status, first := confirm()
	if status != http.StatusOK {
		t.Fatalf("first confirm: status %d body %v", status, first)
	}
	status, second := confirm()
	if status != http.StatusOK {
		t.Fatalf("second confirm: status %d body %v", status, second)
	}
	if second["replayed"] != true {
		t.Fatalf("redelivery not flagged as replay: %v", second)
	}
	if first["balance_cents"] != float64(3000) || second["balance_cents"] != float64(3000) {
		t.Fatalf("double credit over HTTP: first=%v second=%v", first, second)
	}
}

func TestConfirmUnknownReference(t *testing.T) {
	app := newTestApp(t)
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/payments/confirm", map[string]any{
		"external_ref": fmt.Sprintf("evt_%d", time.Now().UnixNano()),
	}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown confirmation: status %d, want 404", status)
	}
}

func TestBiometricFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/tags", map[string]any{
		"code": "CT005", "display_name": "Enrolled", "biometric_ref": "enroll-5",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("issue tag: status %d body %v", status, body)
	}

	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/auth/biometric/begin", map[string]any{
		"tag_code": "CT005",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("begin: status %d body %v", status, body)
	}
	challengeID, _ := body["challenge_id"].(string)
	if challengeID == "" || body["verification_url"] == "" {
		t.Fatalf("incomplete challenge response: %v", body)
	}

	// The static verifier settles immediately; completion yields a session.
	status, body = doJSON(t, app, fiber.MethodPost, "/api/v1/auth/biometric/complete", map[string]any{
		"challenge_id": challengeID,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("complete: status %d body %v", status, body)
	}
	if body["method"] != "biometric" || body["tag_code"] != "CT005" {
		t.Fatalf("unexpected session: %v", body)
	}
}
