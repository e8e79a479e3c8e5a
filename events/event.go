// Package events carries the engine's typed notifications to observers:
// WebSocket clients, the metrics sink and the archiver.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	PairingsGenerated       Type = "PAIRINGS_GENERATED"
	MatchDelayed            Type = "MATCH_DELAYED"
	MatchForfeited          Type = "MATCH_FORFEITED"
	BracketAdvanced         Type = "BRACKET_ADVANCED"
	ClassPhaseChanged       Type = "CLASS_PHASE_CHANGED"
	ClassEnteredElimination Type = "CLASS_ENTERED_ELIMINATION"
	ClassCompleted          Type = "CLASS_COMPLETED"
	ConflictDetected        Type = "CONFLICT_DETECTED"
	MatchStarted            Type = "MATCH_STARTED"
	MatchCompleted          Type = "MATCH_COMPLETED"
	MatchOverdue            Type = "MATCH_OVERDUE"
	ResultCorrected         Type = "RESULT_CORRECTED"
)

// Event is one notification. Zero ids mean the event is not about that entity.
type Event struct {
	ID           string      `json:"id"`
	Type         Type        `json:"type"`
	TournamentID int         `json:"tournament_id"`
	ClassID      int         `json:"class_id,omitempty"`
	MatchID      int         `json:"match_id,omitempty"`
	TeamID       int         `json:"team_id,omitempty"`
	Payload      interface{} `json:"payload,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

func New(t Type, tournamentID int, payload interface{}) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         t,
		TournamentID: tournamentID,
		Payload:      payload,
		OccurredAt:   time.Now().UTC(),
	}
}

// Publisher receives events. Implementations must not block the caller for
// long and must not fail the mutation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Bus fans one event out to every subscriber in registration order.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Publisher
	logger      *slog.Logger
}

func NewBus(logger *slog.Logger, subscribers ...Publisher) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subscribers: subscribers, logger: logger}
}

func (b *Bus) Subscribe(p Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, p)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	subs := append([]Publisher(nil), b.subscribers...)
	b.mu.RUnlock()

	b.logger.Debug("publishing event", "type", e.Type, "tournament_id", e.TournamentID,
		"class_id", e.ClassID, "match_id", e.MatchID, "subscribers", len(subs))
	for _, s := range subs {
		s.Publish(ctx, e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}

// Recorder keeps published events in memory; used by tests and the simulate command.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
