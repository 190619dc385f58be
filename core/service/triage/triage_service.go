package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/core/service/handoff"
	"triage_server/pkg/apperr"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultMaxRetries    = 5
	defaultRetryBase     = 10 * time.Millisecond
	defaultSideEffects   = 5 * time.Second
	analysisTextMaxRunes = 500
	maxHistoryMessages   = 10
	defaultHandoffLimit  = 50
	maxHandoffLimit      = 200

	angerAlertMessage = "顧客の怒りを検出しました。即時対応を推奨します。"
)

// Service implements in.TriageService. State commits are serialized per
// conversation by the store's compare-and-swap; everything else runs after
// the commit.
type Service struct {
	engine   *Engine
	store    out.ConversationStore
	replies  out.ReplyGenerator
	recorder out.TriageRecorder
	handoffs out.HandoffQuery
	alerts   []out.AlertPublisher
	metrics  *metrics.Registry

	maxRetries  uint64
	retryBase   time.Duration
	sideEffects time.Duration
	now         func() time.Time
}

var _ in.TriageService = (*Service)(nil)

func NewService(engine *Engine, store out.ConversationStore, replies out.ReplyGenerator) *Service {
	if replies == nil {
		replies = RuleBasedReplier{}
	}
	return &Service{
		engine:      engine,
		store:       store,
		replies:     replies,
		metrics:     metrics.Global(),
		maxRetries:  defaultMaxRetries,
		retryBase:   defaultRetryBase,
		sideEffects: defaultSideEffects,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetRecorder(recorder out.TriageRecorder) {
	s.recorder = recorder
}

func (s *Service) SetHandoffQuery(q out.HandoffQuery) {
	s.handoffs = q
}

func (s *Service) AddAlertPublisher(p out.AlertPublisher) {
	if p != nil {
		s.alerts = append(s.alerts, p)
	}
}

func (s *Service) SetMetrics(r *metrics.Registry) {
	s.metrics = r
}

// SetRetryPolicy bounds the compare-and-swap retry loop.
func (s *Service) SetRetryPolicy(maxRetries int, base time.Duration) {
	if maxRetries >= 0 {
		s.maxRetries = uint64(maxRetries)
	}
	if base > 0 {
		s.retryBase = base
	}
}

// SetSideEffectTimeout bounds recorder and alert calls made after a commit.
func (s *Service) SetSideEffectTimeout(d time.Duration) {
	if d > 0 {
		s.sideEffects = d
	}
}

func (s *Service) backoff() retry.Backoff {
	return retry.WithMaxRetries(s.maxRetries, retry.WithJitterPercent(20, retry.NewFibonacci(s.retryBase)))
}

// =============================================================================
// Chat
// =============================================================================

func (s *Service) Chat(ctx context.Context, req *in.ChatRequest) (*in.ChatResponse, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("triage.chat", time.Since(start)) }()

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, apperr.InvalidInput("message", "must not be empty")
	}

	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = uuid.NewString()
	}

	now := s.now()
	msg := domain.NewCustomerMessage(text, now)
	history := toMessages(req.History)

	var outcome Outcome
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		state, err := s.loadOrCreate(ctx, convID, history, now)
		if err != nil {
			return err
		}
		if req.CustomerName != "" {
			state.CustomerName = req.CustomerName
		}

		o := s.engine.Classify(msg, state)
		saved, err := s.store.Save(ctx, o.State, state.Version)
		if errors.Is(err, domain.ErrStateConflict) {
			s.metrics.Inc("state.conflicts")
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}

		o.State = saved
		outcome = o
		return nil
	})
	if err != nil {
		return nil, s.commitError(convID, err)
	}

	a := outcome.Assessment
	s.countAssessment(a)

	reply := s.draftReply(ctx, outcome, text, req.CustomerName, history)

	resp := &in.ChatResponse{
		ConversationID: convID,
		Response:       reply,
		Sentiment:      a.Sentiment,
		Harassment:     a.Harassment,
		CombinedRisk:   a.CombinedRisk,
		NeedsHandoff:   outcome.NeedsHandoff(),
		Status:         outcome.State.Status,
		Timestamp:      now,
	}
	if outcome.State.Handoff != nil {
		h := outcome.State.Handoff.Clone()
		resp.Handoff = &h
	}

	s.afterChat(ctx, outcome, text, reply, now)

	logger.WithContext(ctx).WithFields(map[string]any{
		"conversation_id": convID,
		"severity":        a.Harassment.Severity,
		"sentiment":       a.Sentiment.Sentiment,
		"combined_risk":   a.CombinedRisk,
		"needs_handoff":   resp.NeedsHandoff,
	}).Info("chat message triaged")

	return resp, nil
}

func (s *Service) loadOrCreate(ctx context.Context, convID string, history []domain.Message, now time.Time) (domain.ConversationState, error) {
	state, err := s.store.Load(ctx, convID)
	if errors.Is(err, domain.ErrConversationNotFound) {
		fresh := domain.NewConversationState(convID, now)
		return s.engine.Seed(fresh, history), nil
	}
	if err != nil {
		return domain.ConversationState{}, fmt.Errorf("load conversation %s: %w", convID, err)
	}
	return state, nil
}

func (s *Service) commitError(convID string, err error) error {
	switch {
	case errors.Is(err, domain.ErrStateConflict):
		return apperr.StateConflict(convID, err).WithDetail("max_retries", s.maxRetries)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.Timeout("conversation update")
	case apperr.IsAppError(err):
		return err
	default:
		return apperr.DatabaseError("update conversation", err)
	}
}

// draftReply deflects escalated or abusive messages and otherwise asks the
// generator, falling back to canned replies on error.
func (s *Service) draftReply(ctx context.Context, o Outcome, text, customerName string, history []domain.Message) string {
	if o.NeedsHandoff() || o.Assessment.Harassment.Severity.AtLeast(domain.SeverityHigh) {
		return DeflectionReply
	}

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}

	reply, err := s.replies.GenerateReply(ctx, &out.ReplyRequest{
		Message:      text,
		CustomerName: customerName,
		History:      history,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		logger.WithContext(ctx).WithError(err).Warn("reply generation failed, using rule-based reply")
		s.metrics.Inc("reply.fallback")
		return RuleBasedReply(text)
	}
	return reply
}

func (s *Service) afterChat(ctx context.Context, o Outcome, text, reply string, now time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffects)
	defer cancel()

	convID := o.State.ConversationID
	log := logger.WithContext(ctx).WithField("conversation_id", convID)

	if s.recorder != nil {
		rec := &domain.ExchangeRecord{
			ConversationID: convID,
			CustomerName:   o.State.CustomerName,
			CustomerText:   text,
			ReplyText:      reply,
			Assessment:     o.Assessment,
			Status:         o.State.Status,
			Handoff:        o.State.Handoff,
			HandoffCreated: o.HandoffCreated,
			OccurredAt:     now,
		}
		if err := s.recorder.RecordExchange(ctx, rec); err != nil {
			log.WithError(err).Error("failed to record exchange")
		}
	}

	for _, ev := range alertEvents(o, now) {
		s.publish(ctx, ev)
	}
}

// alertEvents derives dashboard events from one outcome.
func alertEvents(o Outcome, now time.Time) []*domain.AlertEvent {
	a := o.Assessment
	convID := o.State.ConversationID

	var events []*domain.AlertEvent
	switch {
	case a.Alert != nil:
		events = append(events, &domain.AlertEvent{
			Type:           domain.AlertEventHarassment,
			ConversationID: convID,
			Severity:       a.Alert.Severity,
			Message:        a.Alert.Message,
			CreatedAt:      now,
		})
	case a.Sentiment.TriggerAlert:
		events = append(events, &domain.AlertEvent{
			Type:           domain.AlertEventAnger,
			ConversationID: convID,
			Severity:       a.CombinedRisk,
			Message:        angerAlertMessage,
			CreatedAt:      now,
		})
	}

	if o.HandoffCreated && o.State.Handoff != nil {
		h := o.State.Handoff.Clone()
		events = append(events, &domain.AlertEvent{
			Type:           domain.AlertEventHandoff,
			ConversationID: convID,
			Severity:       a.CombinedRisk,
			Message:        h.Summary,
			Handoff:        &h,
			CreatedAt:      now,
		})
	}
	return events
}

func (s *Service) publish(ctx context.Context, ev *domain.AlertEvent) {
	for _, p := range s.alerts {
		if err := p.PublishAlert(ctx, ev); err != nil {
			logger.WithContext(ctx).WithError(err).
				WithField("alert_type", ev.Type).
				Warn("failed to publish alert")
		}
	}
}

func (s *Service) countAssessment(a domain.Assessment) {
	s.metrics.Inc("severity." + string(a.Harassment.Severity))
	s.metrics.Inc("sentiment." + string(a.Sentiment.Sentiment))
	s.metrics.Inc("risk." + string(a.CombinedRisk))
}

// =============================================================================
// Analyze
// =============================================================================

func (s *Service) Analyze(ctx context.Context, req *in.AnalyzeRequest) (*in.AnalyzeResponse, error) {
	start := time.Now()
	defer func() { s.metrics.RecordLatency("triage.analyze", time.Since(start)) }()

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, apperr.InvalidInput("message", "must not be empty")
	}

	a := s.engine.Assess(text)
	s.countAssessment(a)
	now := s.now()

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffects)
	defer cancel()

	if s.recorder != nil {
		rec := &domain.AnalysisRecord{
			ConversationID: req.ConversationID,
			Text:           handoff.Truncate(text, analysisTextMaxRunes),
			Assessment:     a,
			AnalyzedAt:     now,
		}
		if err := s.recorder.RecordAnalysis(sideCtx, rec); err != nil {
			logger.WithContext(ctx).WithError(err).Error("failed to record analysis")
		}
	}
	for _, ev := range alertEvents(Outcome{Assessment: a, State: domain.ConversationState{ConversationID: req.ConversationID}}, now) {
		s.publish(sideCtx, ev)
	}

	return &in.AnalyzeResponse{
		Harassment:   a.Harassment,
		Sentiment:    a.Sentiment,
		CombinedRisk: a.CombinedRisk,
		Alert:        a.Alert,
		AnalyzedAt:   now,
	}, nil
}

// =============================================================================
// Conversation / handoff management
// =============================================================================

func (s *Service) GetConversation(ctx context.Context, conversationID string) (*domain.ConversationState, error) {
	state, err := s.store.Load(ctx, conversationID)
	if errors.Is(err, domain.ErrConversationNotFound) {
		return nil, apperr.NotFound("conversation")
	}
	if err != nil {
		return nil, apperr.DatabaseError("load conversation", err)
	}
	return &state, nil
}

func (s *Service) UpdateHandoffStatus(ctx context.Context, conversationID string, status domain.HandoffStatus) (*domain.HandoffRecord, error) {
	if !status.IsValid() {
		return nil, apperr.InvalidInput("status", fmt.Sprintf("unknown handoff status %q", status))
	}

	var (
		updated domain.ConversationState
		from    domain.HandoffStatus
	)
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		state, err := s.store.Load(ctx, conversationID)
		if err != nil {
			return err
		}
		if state.Handoff != nil {
			from = state.Handoff.Status
		}

		next, err := handoff.Transition(state, status, s.now())
		if err != nil {
			return err
		}

		saved, err := s.store.Save(ctx, next, state.Version)
		if errors.Is(err, domain.ErrStateConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		updated = saved
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConversationNotFound):
		return nil, apperr.NotFound("conversation")
	case errors.Is(err, domain.ErrHandoffNotFound):
		return nil, apperr.NotFound("handoff")
	case errors.Is(err, domain.ErrInvalidTransition):
		return nil, apperr.InvalidTransition(string(from), string(status))
	default:
		return nil, s.commitError(conversationID, err)
	}

	h := updated.Handoff.Clone()

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffects)
	defer cancel()
	if s.recorder != nil {
		if err := s.recorder.RecordHandoff(sideCtx, &h); err != nil {
			logger.WithContext(ctx).WithError(err).Error("failed to record handoff status")
		}
	}
	s.publish(sideCtx, &domain.AlertEvent{
		Type:           domain.AlertEventHandoffStatus,
		ConversationID: conversationID,
		Severity:       domain.RiskNone,
		Message:        fmt.Sprintf("%s -> %s", from, status),
		Handoff:        &h,
		CreatedAt:      h.UpdatedAt,
	})

	return &h, nil
}

func (s *Service) ListHandoffs(ctx context.Context, filter *domain.HandoffFilter) ([]*domain.HandoffRecord, error) {
	if s.handoffs == nil {
		return nil, apperr.ServiceUnavailable("handoff storage")
	}
	if filter == nil {
		filter = &domain.HandoffFilter{}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHandoffLimit
	}
	if filter.Limit > maxHandoffLimit {
		filter.Limit = maxHandoffLimit
	}

	list, err := s.handoffs.ListHandoffs(ctx, filter)
	if err != nil {
		return nil, apperr.DatabaseError("list handoffs", err)
	}
	return list, nil
}

func toMessages(history []in.HistoryMessage) []domain.Message {
	msgs := make([]domain.Message, 0, len(history))
	for _, h := range history {
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		msgs = append(msgs, domain.Message{Text: h.Content, Role: domain.ParseRole(h.Role)})
	}
	return msgs
}
