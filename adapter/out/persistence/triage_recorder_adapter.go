package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// TriageRecorderAdapter writes chat turns, analyses and handoffs to
// PostgreSQL and serves the operator handoff queue.
type TriageRecorderAdapter struct {
	db *sqlx.DB
}

var (
	_ out.TriageRecorder = (*TriageRecorderAdapter)(nil)
	_ out.HandoffQuery   = (*TriageRecorderAdapter)(nil)
)

func NewTriageRecorderAdapter(db *sqlx.DB) *TriageRecorderAdapter {
	return &TriageRecorderAdapter{db: db}
}

// RecordExchange stores both sides of the turn, a harassment event when one
// was detected and the handoff when it changed, in a single transaction.
func (a *TriageRecorderAdapter) RecordExchange(ctx context.Context, rec *domain.ExchangeRecord) error {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	as := rec.Assessment
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, sentiment, harassment_severity, combined_risk, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ConversationID, string(domain.RoleCustomer), rec.CustomerText,
		string(as.Sentiment.Sentiment), string(as.Harassment.Severity), string(as.CombinedRisk), rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`,
		rec.ConversationID, string(domain.RoleAgent), rec.ReplyText, rec.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reply: %w", err)
	}

	if as.Harassment.IsHarassment {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO harassment_events (conversation_id, severity, combined_risk, categories, matched_patterns, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			rec.ConversationID, string(as.Harassment.Severity), string(as.CombinedRisk),
			pq.Array(nonNil(as.Harassment.Categories)), pq.Array(nonNil(as.Harassment.MatchedPatterns)), rec.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert harassment event: %w", err)
		}
	}

	if rec.Handoff != nil {
		if err := upsertHandoff(ctx, tx, rec.Handoff); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (a *TriageRecorderAdapter) RecordAnalysis(ctx context.Context, rec *domain.AnalysisRecord) error {
	var convID sql.NullString
	if rec.ConversationID != "" {
		convID = sql.NullString{String: rec.ConversationID, Valid: true}
	}

	as := rec.Assessment
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO analysis_logs (conversation_id, message_text, harassment_severity, sentiment, combined_risk, alerted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		convID, rec.Text, string(as.Harassment.Severity), string(as.Sentiment.Sentiment),
		string(as.CombinedRisk), as.Alert != nil, rec.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis log: %w", err)
	}
	return nil
}

func (a *TriageRecorderAdapter) RecordHandoff(ctx context.Context, h *domain.HandoffRecord) error {
	return upsertHandoff(ctx, a.db, h)
}

func upsertHandoff(ctx context.Context, db sqlx.ExecerContext, h *domain.HandoffRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO handoffs (
			id, conversation_id, customer_name, priority, summary, status,
			detected_issues, order_numbers, sentiment_history,
			harassment_detected, harassment_severity,
			trigger_excerpt, trigger_categories, escalation_reasons,
			ai_resolution_attempted, total_messages, customer_messages,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (conversation_id) DO UPDATE SET
			priority            = EXCLUDED.priority,
			summary             = EXCLUDED.summary,
			status              = EXCLUDED.status,
			detected_issues     = EXCLUDED.detected_issues,
			order_numbers       = EXCLUDED.order_numbers,
			sentiment_history   = EXCLUDED.sentiment_history,
			harassment_detected = EXCLUDED.harassment_detected,
			harassment_severity = EXCLUDED.harassment_severity,
			total_messages      = EXCLUDED.total_messages,
			customer_messages   = EXCLUDED.customer_messages,
			updated_at          = EXCLUDED.updated_at
		WHERE handoffs.updated_at <= EXCLUDED.updated_at`,
		h.ID, h.ConversationID, h.CustomerName, string(h.Priority), h.Summary, string(h.Status),
		pq.Array(nonNil(h.DetectedIssues)), pq.Array(nonNil(h.OrderNumbers)), pq.Array(sentimentStrings(h.SentimentHistory)),
		h.HarassmentDetected, string(h.HarassmentSeverity),
		h.TriggerExcerpt, pq.Array(nonNil(h.TriggerCategories)), pq.Array(nonNil(h.EscalationReasons)),
		h.AIResolutionAttempted, h.TotalMessages, h.CustomerMessages,
		h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert handoff: %w", err)
	}
	return nil
}

// =============================================================================
// Handoff queue
// =============================================================================

type handoffRow struct {
	ID                    int64          `db:"id"`
	ConversationID        string         `db:"conversation_id"`
	CustomerName          sql.NullString `db:"customer_name"`
	Priority              string         `db:"priority"`
	Summary               string         `db:"summary"`
	Status                string         `db:"status"`
	DetectedIssues        pq.StringArray `db:"detected_issues"`
	OrderNumbers          pq.StringArray `db:"order_numbers"`
	SentimentHistory      pq.StringArray `db:"sentiment_history"`
	HarassmentDetected    bool           `db:"harassment_detected"`
	HarassmentSeverity    string         `db:"harassment_severity"`
	TriggerExcerpt        string         `db:"trigger_excerpt"`
	TriggerCategories     pq.StringArray `db:"trigger_categories"`
	EscalationReasons     pq.StringArray `db:"escalation_reasons"`
	AIResolutionAttempted bool           `db:"ai_resolution_attempted"`
	TotalMessages         int            `db:"total_messages"`
	CustomerMessages      int            `db:"customer_messages"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func (r *handoffRow) toDomain() *domain.HandoffRecord {
	h := &domain.HandoffRecord{
		ID:                    r.ID,
		ConversationID:        r.ConversationID,
		Priority:              domain.HandoffPriority(r.Priority),
		Summary:               r.Summary,
		Status:                domain.HandoffStatus(r.Status),
		DetectedIssues:        []string(r.DetectedIssues),
		OrderNumbers:          []string(r.OrderNumbers),
		HarassmentDetected:    r.HarassmentDetected,
		HarassmentSeverity:    domain.Severity(r.HarassmentSeverity),
		TriggerExcerpt:        r.TriggerExcerpt,
		TriggerCategories:     []string(r.TriggerCategories),
		EscalationReasons:     []string(r.EscalationReasons),
		AIResolutionAttempted: r.AIResolutionAttempted,
		TotalMessages:         r.TotalMessages,
		CustomerMessages:      r.CustomerMessages,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	if r.CustomerName.Valid {
		h.CustomerName = r.CustomerName.String
	}
	h.SentimentHistory = make([]domain.Sentiment, 0, len(r.SentimentHistory))
	for _, s := range r.SentimentHistory {
		h.SentimentHistory = append(h.SentimentHistory, domain.Sentiment(s))
	}
	return h
}

// ListHandoffs returns the queue ordered by priority, then oldest first.
func (a *TriageRecorderAdapter) ListHandoffs(ctx context.Context, filter *domain.HandoffFilter) ([]*domain.HandoffRecord, error) {
	query, args := buildHandoffQuery(filter)

	var rows []handoffRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list handoffs: %w", err)
	}

	result := make([]*domain.HandoffRecord, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

func buildHandoffQuery(filter *domain.HandoffFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter != nil && filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter != nil && filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		conds = append(conds, fmt.Sprintf("priority = $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM handoffs")
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(` ORDER BY CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 ELSE 2 END, created_at ASC`)

	limit, offset := 50, 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		offset = filter.Offset
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	if offset > 0 {
		args = append(args, offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func sentimentStrings(history []domain.Sentiment) []string {
	out := make([]string, len(history))
	for i, s := range history {
		out[i] = string(s)
	}
	return out
}
