// Package audit forwards engine actions to an audit-log collaborator.
// Recording is fire-and-forget: a failing sink never fails the action.
package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/pocketmoney/internal/auth"
)

type Event struct {
	Action   string
	ActorID  string
	TargetID string
	Meta     map[string]any
}

// Sink accepts audit events. Implementations must not block the caller for long.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Record sends e to sink and swallows any failure after logging it. A nil sink
// is a no-op. When e has no actor, the authenticated user from ctx is used.
func Record(ctx context.Context, sink Sink, logger *slog.Logger, e Event) {
	if sink == nil {
		return
	}
	if e.ActorID == "" {
		e.ActorID = auth.UserID(ctx)
	}
	if err := sink.Record(ctx, e); err != nil && logger != nil {
		logger.Warn("audit record failed", "action", e.Action, "target_id", e.TargetID, "error", err)
	}
}

// LogSink writes audit events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, e Event) error {
	attrs := []any{
		"action", e.Action,
		"actor_id", e.ActorID,
		"target_id", e.TargetID,
	}
	if fid := auth.FamilyID(ctx); fid != "" {
		attrs = append(attrs, "family_id", fid)
	}
	if len(e.Meta) > 0 {
		attrs = append(attrs, "meta", e.Meta)
	}
	s.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

// Recorder keeps events in memory. Tests use it to assert on emitted actions.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (r *Recorder) Record(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return r.Err
}

// Actions returns the recorded action names in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Action
	}
	return out
}
