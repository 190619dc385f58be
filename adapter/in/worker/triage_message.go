package worker

import (
	"time"

	"github.com/goccy/go-json"

	"triage_server/core/port/out"
)

// JobType represents the type of a job.
type JobType = string

const (
	JobRecordExchange JobType = out.JobRecordExchange
	JobRecordAnalysis JobType = out.JobRecordAnalysis
	JobRecordHandoff  JobType = out.JobRecordHandoff
)

type Message struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Retries   int             `json:"retries"`

	// done receives the outcome when the submitter waits via Pool.Do.
	done chan error
}

func (m *Message) report(err error) {
	if m.done != nil {
		m.done <- err
	}
}

// ParseMessage decodes a PersistJob read from the persist stream.
func ParseMessage(data []byte) (*Message, error) {
	var job out.PersistJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &Message{
		ID:        job.ID,
		Type:      job.Type,
		Payload:   job.Payload,
		CreatedAt: job.CreatedAt,
	}, nil
}

// ParsePayload decodes the message payload into T.
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
