package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
)

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message     string     `json:"message"`
	Location    string     `json:"location,omitempty"`
	RecentTurns []chatTurn `json:"recent_turns,omitempty"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxRequestBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	question := strings.TrimSpace(req.Message)
	if question == "" {
		writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}

	turns, err := toTurns(req.RecentTurns)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	start := time.Now()
	decision := rt.answers.Answer(r.Context(), question, turns)
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(rt.opts.Service, "chat", decision.Metadata, time.Since(start))
	}

	rt.reportFallback(r.Context(), question, req.Location, decision)

	writeJSON(w, http.StatusOK, decision)
}

// reportFallback never fails the request; the answer is already computed.
func (rt *Router) reportFallback(ctx context.Context, question, location string, decision domain.AnswerDecision) {
	if rt.reporter == nil {
		return
	}
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.opts.FallbackTimeout)
	defer cancel()

	published, err := rt.reporter.Report(reportCtx, question, location, decision)
	if rt.metrics != nil {
		rt.metrics.RecordFallbackEvent(rt.opts.Service, published, err)
	}
	if err != nil {
		slog.Warn("fallback_report_failed",
			"request_id", requestIDFromContext(ctx),
			"error", err,
		)
	}
}

func toTurns(raw []chatTurn) ([]domain.Turn, error) {
	turns := make([]domain.Turn, 0, len(raw))
	for i, t := range raw {
		role, ok := domain.ParseRole(t.Role)
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse recent turns",
				fmt.Errorf("recent_turns[%d].role must be user or assistant", i))
		}
		turns = append(turns, domain.Turn{Role: role, Content: t.Content})
	}
	return turns, nil
}
