package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

func completionServer(t *testing.T, status int, content string, seen *openai.ChatCompletionRequest) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGenerateReply(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv, _ := completionServer(t, http.StatusOK, "  確認いたします。 ", &seen)
	gen := NewReplyGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, zerolog.Nop())

	reply, err := gen.GenerateReply(context.Background(), &out.ReplyRequest{
		Message:      "配送はいつですか",
		CustomerName: "佐藤",
		History: []domain.Message{
			{Text: "こんにちは", Role: domain.RoleCustomer},
			{Text: "ご用件をどうぞ", Role: domain.RoleAgent},
		},
	})
	if err != nil {
		t.Fatalf("GenerateReply() error = %v", err)
	}
	if reply != "確認いたします。" {
		t.Errorf("reply = %q", reply)
	}

	if seen.Model != DefaultModel {
		t.Errorf("model = %q, want %q", seen.Model, DefaultModel)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(seen.Messages) != len(wantRoles) {
		t.Fatalf("sent %d messages, want %d", len(seen.Messages), len(wantRoles))
	}
	for i, r := range wantRoles {
		if seen.Messages[i].Role != r {
			t.Errorf("messages[%d].Role = %s, want %s", i, seen.Messages[i].Role, r)
		}
	}
}

func TestGenerateReply_EmptyCompletion(t *testing.T) {
	srv, _ := completionServer(t, http.StatusOK, "   ", nil)
	gen := NewReplyGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, zerolog.Nop())

	if _, err := gen.GenerateReply(context.Background(), &out.ReplyRequest{Message: "hi"}); err == nil {
		t.Error("expected an error for an empty completion")
	}
}

func TestGenerateReply_BreakerOpens(t *testing.T) {
	srv, calls := completionServer(t, http.StatusBadRequest, "", nil)
	gen := NewReplyGenerator(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, zerolog.Nop())

	for i := 0; i < 8; i++ {
		if _, err := gen.GenerateReply(context.Background(), &out.ReplyRequest{Message: "hi"}); err == nil {
			t.Fatal("expected an error")
		}
	}
	if gen.State() != "open" {
		t.Errorf("State() = %s, want open", gen.State())
	}
	if got := atomic.LoadInt32(calls); got != 5 {
		t.Errorf("upstream calls = %d, want 5 before the breaker opened", got)
	}

	_, err := gen.GenerateReply(context.Background(), &out.ReplyRequest{Message: "hi"})
	var ae *apperr.AppError
	if !errors.As(err, &ae) || ae.Code != apperr.CodeExternalError {
		t.Fatalf("err = %v, want EXTERNAL_ERROR", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want it to wrap gobreaker.ErrOpenState", err)
	}
}
