package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	wizardIDKey ctxKey = iota
	stepIDKey
	slotKey
)

// WithWizardID returns a context with the wizard session ID set.
func WithWizardID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, wizardIDKey, id)
}

// WithStepID returns a context with the step ID set.
func WithStepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stepIDKey, id)
}

// WithSlot returns a context with the attachment slot key set.
func WithSlot(ctx context.Context, slot string) context.Context {
	return context.WithValue(ctx, slotKey, slot)
}

// WizardID extracts the wizard session ID from the context, or "" if absent.
func WizardID(ctx context.Context) string {
	v, _ := ctx.Value(wizardIDKey).(string)
	return v
}

// StepID extracts the step ID from the context, or "" if absent.
func StepID(ctx context.Context) string {
	v, _ := ctx.Value(stepIDKey).(string)
	return v
}

// Slot extracts the attachment slot key from the context, or "" if absent.
func Slot(ctx context.Context) string {
	v, _ := ctx.Value(slotKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := WizardID(ctx); id != "" {
		logger = logger.With(slog.String("wizard_id", id))
	}
	if id := StepID(ctx); id != "" {
		logger = logger.With(slog.String("step_id", id))
	}
	if s := Slot(ctx); s != "" {
		logger = logger.With(slog.String("slot", s))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := WizardID(ctx); v != "" {
		r.AddAttrs(slog.String("wizard_id", v))
	}
	if v := StepID(ctx); v != "" {
		r.AddAttrs(slog.String("step_id", v))
	}
	if v := Slot(ctx); v != "" {
		r.AddAttrs(slog.String("slot", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
