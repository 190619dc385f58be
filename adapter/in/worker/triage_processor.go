package worker

import (
	"context"
	"fmt"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

// PersistProcessor replays queued records into the durable sinks.
type PersistProcessor struct {
	recorder out.TriageRecorder
}

func NewPersistProcessor(recorder out.TriageRecorder) *PersistProcessor {
	return &PersistProcessor{recorder: recorder}
}

func (p *PersistProcessor) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobRecordExchange:
		rec, err := ParsePayload[domain.ExchangeRecord](msg)
		if err != nil {
			return fmt.Errorf("invalid exchange payload: %w", err)
		}
		return p.recorder.RecordExchange(ctx, rec)

	case JobRecordAnalysis:
		rec, err := ParsePayload[domain.AnalysisRecord](msg)
		if err != nil {
			return fmt.Errorf("invalid analysis payload: %w", err)
		}
		return p.recorder.RecordAnalysis(ctx, rec)

	case JobRecordHandoff:
		h, err := ParsePayload[domain.HandoffRecord](msg)
		if err != nil {
			return fmt.Errorf("invalid handoff payload: %w", err)
		}
		return p.recorder.RecordHandoff(ctx, h)

	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}
