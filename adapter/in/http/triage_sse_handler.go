package http

import (
	"bufio"
	"strconv"
	"time"

	"triage_server/adapter/out/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// =============================================================================
// Alert stream - 상담원 대시보드용 SSE
// =============================================================================

// AlertStreamHandler streams alert events to agent dashboards.
type AlertStreamHandler struct {
	hub *realtime.AlertHub
	log zerolog.Logger
}

func NewAlertStreamHandler(hub *realtime.AlertHub, log zerolog.Logger) *AlertStreamHandler {
	return &AlertStreamHandler{
		hub: hub,
		log: log.With().Str("handler", "alert_stream").Logger(),
	}
}

func (h *AlertStreamHandler) Register(router fiber.Router) {
	router.Get("/alerts/stream", h.Stream)
	router.Get("/alerts/status", h.Status)
}

// Stream handles SSE connections.
// GET /api/v1/alerts/stream?min_severity=high
func (h *AlertStreamHandler) Stream(c *fiber.Ctx) error {
	minSeverity, err := parseRisk("min_severity", c.Query("min_severity"))
	if err != nil {
		return err
	}

	sub := h.hub.Subscribe(minSeverity)
	h.log.Info().
		Str("subscriber_id", sub.ID).
		Str("min_severity", string(sub.MinSeverity)).
		Msg("alert stream connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(sub.HeartbeatInterval())
		defer ticker.Stop()
		defer func() {
			sub.Close()
			h.log.Info().Str("subscriber_id", sub.ID).Msg("alert stream disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-sub.Events:
				if !ok {
					return
				}

				data, err := realtime.SerializeEvent(event)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize event")
					continue
				}

				w.WriteString("id: ")
				w.WriteString(strconv.FormatInt(event.Seq, 10))
				w.WriteString("\nevent: ")
				w.WriteString(string(event.Alert.Type))
				w.WriteString("\ndata: ")
				w.Write(data)
				w.WriteString("\n\n")

				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}

			case <-sub.Done:
				return
			}
		}
	})

	return nil
}

// Status reports hub connection counts.
func (h *AlertStreamHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.hub.GetMetrics())
}
