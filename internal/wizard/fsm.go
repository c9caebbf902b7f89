package wizard

import (
	"context"
	"sync"

	"github.com/fitdesk/enrollkit/internal/store"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// TransitionHook is called before or after a lifecycle transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store and by test doubles; used to emit
// events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

type hookKey struct {
	from, to schema.WizardStatus
}

// FSM manages wizard session lifecycle transitions. The active→submitting
// edge doubles as the double-submission guard: a second Submit while one is
// outstanding is an invalid transition.
type FSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewFSM creates a new session FSM that emits events via the given appender.
func NewFSM(appender EventAppender) *FSM {
	return &FSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *FSM) OnBefore(from, to schema.WizardStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FSM) OnAfter(from, to schema.WizardStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a session lifecycle transition,
// emitting the corresponding event via the appender.
func (f *FSM) Transition(ctx context.Context, wizardID string, from, to schema.WizardStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTransition(from, to) {
		code := schema.ErrCodeInvalidTransition
		if from == schema.WizardStatusSubmitting && to == schema.WizardStatusSubmitting {
			code = schema.ErrCodeSubmitInFlight
		}
		return schema.NewErrorf(code,
			"invalid wizard transition: %s -> %s", from, to).
			WithDetails(map[string]any{"wizard_id": wizardID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	// Run before hooks.
	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	// Emit the corresponding event.
	if eventType := transitionEventType(from, to); eventType != "" {
		event := &store.Event{
			WizardID: wizardID,
			Type:     eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit wizard event: %s", err.Error()).WithCause(err)
		}
	}

	// Run after hooks.
	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidTransition(from, to schema.WizardStatus) bool {
	allowed, ok := schema.ValidWizardTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func transitionEventType(from, to schema.WizardStatus) string {
	switch {
	case to == schema.WizardStatusSubmitting:
		return schema.EventSubmitStarted
	case from == schema.WizardStatusSubmitting && to == schema.WizardStatusActive:
		return schema.EventSubmitFailed
	case to == schema.WizardStatusCompleted:
		return schema.EventSubmitSucceeded
	case to == schema.WizardStatusClosed:
		return schema.EventWizardClosed
	default:
		return ""
	}
}
