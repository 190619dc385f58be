package http

import (
	"strings"

	"triage_server/core/domain"
	"triage_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

const maxListLimit = 200

// bindJSON decodes the request body, mapping decode failures to INVALID_INPUT.
func bindJSON(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return apperr.InvalidInput("body", "request body is required")
	}
	if err := c.BodyParser(dst); err != nil {
		return apperr.InvalidInput("body", "malformed JSON")
	}
	return nil
}

// parseRisk reads a combined-risk query value; empty means "no filter".
func parseRisk(field, raw string) (domain.CombinedRisk, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	r := domain.CombinedRisk(raw)
	if !domain.Severity(r).IsValid() {
		return "", apperr.InvalidInput(field, "must be one of none, low, medium, high, critical")
	}
	return r, nil
}

func parseHandoffStatus(field, raw string) (domain.HandoffStatus, error) {
	s := domain.HandoffStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", apperr.InvalidInput(field, "must be one of pending, accepted, in_progress, resolved")
	}
	return s, nil
}

func parsePriority(field, raw string) (domain.HandoffPriority, error) {
	p := domain.HandoffPriority(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case domain.PriorityNormal, domain.PriorityHigh, domain.PriorityCritical:
		return p, nil
	}
	return "", apperr.InvalidInput(field, "must be one of normal, high, critical")
}
