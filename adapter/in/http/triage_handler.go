package http

import (
	"strings"

	"triage_server/core/domain"
	in "triage_server/core/port/in"
	"triage_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// TriageHandler serves the customer chat and analysis endpoints and the
// agent-facing handoff queue.
type TriageHandler struct {
	service in.TriageService
}

func NewTriageHandler(service in.TriageService) *TriageHandler {
	return &TriageHandler{service: service}
}

// Register mounts the routes. guards run only in front of the public
// customer endpoints.
func (h *TriageHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/chat", withGuards(guards, h.Chat)...)
	router.Post("/analyze", withGuards(guards, h.Analyze)...)

	router.Get("/conversations/:id", h.GetConversation)

	handoffs := router.Group("/handoffs")
	handoffs.Get("/", h.ListHandoffs)
	handoffs.Patch("/:conversation_id/status", h.UpdateHandoffStatus)
}

func withGuards(guards []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, handler)
}

// =============================================================================
// Customer endpoints
// =============================================================================

// Chat classifies one customer message and returns the reply.
// POST /api/v1/chat
func (h *TriageHandler) Chat(c *fiber.Ctx) error {
	var req in.ChatRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperr.InvalidInput("message", "message is required")
	}

	resp, err := h.service.Chat(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// Analyze classifies a message without touching conversation state.
// POST /api/v1/analyze
func (h *TriageHandler) Analyze(c *fiber.Ctx) error {
	var req in.AnalyzeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperr.InvalidInput("message", "message is required")
	}

	resp, err := h.service.Analyze(c.UserContext(), &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// GetConversation returns the current state of one conversation.
// GET /api/v1/conversations/:id
func (h *TriageHandler) GetConversation(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return apperr.MissingField("id")
	}

	state, err := h.service.GetConversation(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(state)
}

// =============================================================================
// Handoff queue
// =============================================================================

// ListHandoffs returns handoffs ordered by priority, oldest first.
// GET /api/v1/handoffs?status=&priority=&limit=&offset=
func (h *TriageHandler) ListHandoffs(c *fiber.Ctx) error {
	filter := &domain.HandoffFilter{
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}
	if filter.Limit < 0 || filter.Limit > maxListLimit {
		return apperr.InvalidInput("limit", "must be between 1 and 200")
	}
	if filter.Offset < 0 {
		return apperr.InvalidInput("offset", "must not be negative")
	}
	if raw := c.Query("status"); raw != "" {
		status, err := parseHandoffStatus("status", raw)
		if err != nil {
			return err
		}
		filter.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority, err := parsePriority("priority", raw)
		if err != nil {
			return err
		}
		filter.Priority = &priority
	}

	handoffs, err := h.service.ListHandoffs(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if handoffs == nil {
		handoffs = []*domain.HandoffRecord{}
	}
	return c.JSON(fiber.Map{
		"handoffs": handoffs,
		"count":    len(handoffs),
	})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateHandoffStatus moves a handoff forward in its lifecycle.
// PATCH /api/v1/handoffs/:conversation_id/status
func (h *TriageHandler) UpdateHandoffStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	status, err := parseHandoffStatus("status", req.Status)
	if err != nil {
		return err
	}

	record, err := h.service.UpdateHandoffStatus(c.UserContext(), c.Params("conversation_id"), status)
	if err != nil {
		return err
	}
	return c.JSON(record)
}
