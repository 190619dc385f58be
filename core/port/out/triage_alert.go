package out

import (
	"context"

	"triage_server/core/domain"
)

// AlertPublisher fans alert events out to operators (SSE, Kafka).
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event *domain.AlertEvent) error
}
