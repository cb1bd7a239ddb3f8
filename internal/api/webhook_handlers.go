package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/callforge/callforge/internal/api/middleware"
	"github.com/callforge/callforge/internal/event"
)

// maxWebhookBody bounds a single webhook delivery.
const maxWebhookBody = 256 << 10

// webhookAck is the fixed acknowledgement body. The provider retries any
// non-200 response, which would duplicate already-applied effects, so
// every delivery is acknowledged no matter what happened inside.
type webhookAck struct {
	Received bool `json:"received"`
	Failover bool `json:"failover,omitempty"`
}

// handleWebhook returns the ingress handler for the primary or failover
// route. Processing failures are logged and absorbed; the response is
// always 200.
func (s *Server) handleWebhook(failover bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.processWebhook(r, failover)
		s.ack(w, failover)
	}
}

// processWebhook parses and dispatches one delivery, absorbing every
// error. Parsed event fields are tagged onto the access-log line so the
// request log shows which call the delivery belonged to.
func (s *Server) processWebhook(r *http.Request, failover bool) {
	ctx := r.Context()
	if failover {
		middleware.Tag(ctx, "failover", true)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.logger.Error("reading webhook body", "error", err, "failover", failover)
		return
	}

	ev, err := event.Normalize(body)
	if err != nil {
		if errors.Is(err, event.ErrMalformed) {
			// Acknowledged anyway; retrying a permanently malformed
			// delivery only amplifies traffic.
			s.logger.Warn("malformed webhook dropped", "error", err, "failover", failover)
		} else {
			s.logger.Error("normalizing webhook", "error", err, "failover", failover)
		}
		return
	}

	middleware.Tag(ctx, "event_type", ev.RawType)
	middleware.Tag(ctx, "call_control_id", ev.CallControlID)

	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		s.logger.Error("dispatching event",
			"event_type", ev.RawType,
			"call_control_id", ev.CallControlID,
			"error", err,
		)
	}
}

// ack writes the always-200 acknowledgement.
func (s *Server) ack(w http.ResponseWriter, failover bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(webhookAck{Received: true, Failover: failover}); err != nil {
		s.logger.Error("encoding webhook ack", "error", err)
	}
}

// ackPanic is the recoverer's response writer for the webhook routes. The
// delivery failed catastrophically, but the provider still gets its ack.
func (s *Server) ackPanic(w http.ResponseWriter, r *http.Request) {
	s.ack(w, strings.HasSuffix(r.URL.Path, "/failover"))
}
