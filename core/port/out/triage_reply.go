package out

import (
	"context"

	"triage_server/core/domain"
)

type ReplyRequest struct {
	Message      string
	CustomerName string
	History      []domain.Message
}

// ReplyGenerator drafts the automated answer for a non-escalated message.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, req *ReplyRequest) (string, error)
}
