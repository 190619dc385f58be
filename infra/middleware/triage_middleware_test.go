package middleware

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

func newTestApp(reg *metrics.Registry) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(Recover())
	app.Use(RequestID())
	app.Use(RequestLogger(reg))
	return app
}

func decodeError(t *testing.T, body io.Reader) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestErrorHandler(t *testing.T) {
	app := newTestApp(metrics.NewRegistry(10))
	app.Get("/app", func(c *fiber.Ctx) error {
		return apperr.NotFound("conversation")
	})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTooManyRequests, "slow down")
	})
	app.Get("/wrapped", func(c *fiber.Ctx) error {
		return fmt.Errorf("read body: %w", fiber.ErrRequestEntityTooLarge)
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return io.ErrUnexpectedEOF
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/app", 404, apperr.CodeNotFound},
		{"/fiber", 429, "RATE_LIMITED"},
		{"/wrapped", 413, "PAYLOAD_TOO_LARGE"},
		{"/missing", 404, apperr.CodeNotFound},
		{"/plain", 500, apperr.CodeInternalError},
		{"/panic", 500, apperr.CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body := decodeError(t, resp.Body)
			if body.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.code)
			}
			if body.RequestID == "" {
				t.Error("missing request id")
			}
		})
	}
}

func TestRequestIDPropagation(t *testing.T) {
	app := newTestApp(metrics.NewRegistry(10))
	app.Get("/id", func(c *fiber.Ctx) error {
		id, _ := c.UserContext().Value(logger.RequestIDKey).(string)
		return c.SendString(id)
	})

	req := httptest.NewRequest("GET", "/id", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "req-42" {
		t.Errorf("user context request id = %q", b)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("header = %q", got)
	}
}

func TestRequestLoggerRecordsLatency(t *testing.T) {
	reg := metrics.NewRegistry(10)
	app := newTestApp(reg)
	app.Get("/conversations/:id", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	if _, err := app.Test(httptest.NewRequest("GET", "/conversations/abc", nil)); err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	latency := reg.Snapshot()["latency"].(map[string]any)
	if _, ok := latency["http.GET /conversations/:id"]; !ok {
		t.Errorf("route latency missing: %v", latency)
	}
}

func TestJSONOnlyAndBodySize(t *testing.T) {
	app := newTestApp(metrics.NewRegistry(10))
	app.Post("/in", JSONOnly(), MaxBodySize(16), func(c *fiber.Ctx) error { return c.SendStatus(204) })

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
	}{
		{"json ok", "application/json", `{"a":1}`, 204},
		{"text rejected", "text/plain", "hello", 415},
		{"too large", "application/json", `{"message":"` + strings.Repeat("x", 32) + `"}`, 413},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/in", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	app := newTestApp(metrics.NewRegistry(10))
	app.Get("/", rl.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(204) })

	want := []int{204, 204, 429}
	for i, status := range want {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != status {
			t.Errorf("request %d: status = %d, want %d", i, resp.StatusCode, status)
		}
	}
}
