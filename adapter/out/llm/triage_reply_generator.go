// Package llm drafts customer replies with an OpenAI-compatible chat model.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.3
	DefaultTimeout     = 15 * time.Second
)

const systemPrompt = "あなたはカスタマーサポートAIアシスタントです。" +
	"日本語で丁寧に、かつ迅速に対応してください。" +
	"カスタマーハラスメントには冷静に対応し、必要に応じて上席者への引き継ぎを提案してください。" +
	"回答は簡潔かつ具体的にしてください（200文字以内推奨）。"

// ErrEmptyCompletion is returned when the model answers with no content.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// ReplyGenerator implements out.ReplyGenerator. Calls go through a circuit
// breaker so that an outage degrades to the rule-based fallback quickly.
type ReplyGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	cb          *gobreaker.CircuitBreaker
}

var _ out.ReplyGenerator = (*ReplyGenerator)(nil)

func NewReplyGenerator(cfg Config, log zerolog.Logger) *ReplyGenerator {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	log = log.With().Str("component", "llm_reply").Logger()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-reply",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 연속 5회 실패 또는 50% 이상 실패율 (최소 10회 요청)
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 || (counts.Requests >= 10 && ratio >= 0.5)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &ReplyGenerator{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		cb:          cb,
	}
}

func (g *ReplyGenerator) GenerateReply(ctx context.Context, req *out.ReplyRequest) (string, error) {
	result, err := g.cb.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.complete(ctx, req)
	})
	if err != nil {
		return "", apperr.ExternalError("openai", err)
	}
	return result.(string), nil
}

func (g *ReplyGenerator) complete(ctx context.Context, req *out.ReplyRequest) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages:    buildMessages(req),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// State reports the breaker state for health checks.
func (g *ReplyGenerator) State() string {
	return g.cb.State().String()
}

func buildMessages(req *out.ReplyRequest) []openai.ChatCompletionMessage {
	prompt := systemPrompt
	if req.CustomerName != "" {
		prompt += "お客様のお名前は「" + req.CustomerName + "」様です。"
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: prompt})
	for _, m := range req.History {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: chatRole(m.Role), Content: m.Text})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	return msgs
}

func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleAgent:
		return openai.ChatMessageRoleAssistant
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
