package out

import (
	"context"
	"time"
)

// Persistence job kinds carried on the persist stream.
const (
	JobRecordExchange = "record_exchange"
	JobRecordAnalysis = "record_analysis"
	JobRecordHandoff  = "record_handoff"
)

// PersistJob wraps one recorder call for asynchronous processing.
type PersistJob struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// JobProducer enqueues persistence jobs.
type JobProducer interface {
	PublishPersist(ctx context.Context, job *PersistJob) error
}
