package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

// DispatchFilter reports whether a ready match may run now under the class
// rotation. A nil filter admits every match.
type DispatchFilter func(m *models.Match) bool

type queueEntry struct {
	match    *models.Match
	key      float64
	duration time.Duration
	delays   int
	reason   string
}

func (e *queueEntry) band() int { return e.match.PriorityBand() }

// ScheduleQueue linearizes the ready matches of one tournament. Swiss matches
// form band 0 and run before elimination matches in band 1; inside a band the
// lowest key runs first. Keys start as the match's creation sequence, so a
// band is FIFO until a delay or reschedule moves an entry.
type ScheduleQueue struct {
	mu           sync.Mutex
	tournamentID int
	queued       map[int]*queueEntry
	running      map[int]*queueEntry
	busy         map[int]int // team id -> running match id
	turnover     time.Duration
	now          func() time.Time
}

func NewScheduleQueue(tournamentID int, turnover time.Duration, now func() time.Time) *ScheduleQueue {
	if now == nil {
		now = time.Now
	}
	return &ScheduleQueue{
		tournamentID: tournamentID,
		queued:       make(map[int]*queueEntry),
		running:      make(map[int]*queueEntry),
		busy:         make(map[int]int),
		turnover:     turnover,
		now:          now,
	}
}

// Enqueue adds a ready match, or refreshes the snapshot of one already queued.
// A refresh moves the entry only when the match carries a stored queue key.
func (q *ScheduleQueue) Enqueue(m *models.Match, duration time.Duration) error {
	if !m.Playable() || m.Status.Terminal() {
		return fmt.Errorf("%w: match %d (%s)", ErrMatchNotReady, m.ID, m.Status)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.queued[m.ID]; ok {
		e.match = m.Clone()
		e.duration = duration
		if m.QueueKey != nil {
			e.key = *m.QueueKey
		}
		return nil
	}
	if e, ok := q.running[m.ID]; ok {
		e.match = m.Clone()
		return nil
	}
	e := &queueEntry{
		match:    m.Clone(),
		key:      m.OrderKey(),
		duration: duration,
		delays:   len(m.DelayReasons),
	}
	if e.delays > 0 {
		e.reason = m.DelayReasons[e.delays-1]
	}
	q.queued[m.ID] = e
	return nil
}

func (q *ScheduleQueue) ordered() []*queueEntry {
	entries := make([]*queueEntry, 0, len(q.queued))
	for _, e := range q.queued {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.band() != b.band() {
			return a.band() < b.band()
		}
		if a.key != b.key {
			return a.key < b.key
		}
		return a.match.ID < b.match.ID
	})
	return entries
}

// Next returns the first queued match whose teams are free and that the
// filter admits. It does not change the queue; see MarkRunning.
func (q *ScheduleQueue) Next(filter DispatchFilter) (*models.Match, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.ordered()
	if len(entries) == 0 {
		return nil, ErrQueueEmpty
	}
	for _, e := range entries {
		if q.teamsBusy(e.match) {
			continue
		}
		if filter != nil && !filter(e.match) {
			continue
		}
		return e.match.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %d queued matches are blocked by busy teams or class rotation", ErrQueueEmpty, len(entries))
}

func (q *ScheduleQueue) teamsBusy(m *models.Match) bool {
	for _, id := range m.TeamIDs() {
		if running, ok := q.busy[id]; ok && running != m.ID {
			return true
		}
	}
	return false
}

// MarkRunning moves a queued match into the running set and blocks its teams.
// Marking a match that is already running only refreshes it.
func (q *ScheduleQueue) MarkRunning(m *models.Match) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queued[m.ID]
	if !ok {
		if e, ok = q.running[m.ID]; !ok {
			return fmt.Errorf("%w: match %d", ErrNotQueued, m.ID)
		}
	}
	delete(q.queued, m.ID)
	e.match = m.Clone()
	q.running[m.ID] = e
	for _, id := range m.TeamIDs() {
		q.busy[id] = m.ID
	}
	return nil
}

// Delay moves a queued or running match to the back of its band and returns
// its new 1-based position in the whole queue. A stored queue key on m wins
// over the computed one.
func (q *ScheduleQueue) Delay(m *models.Match, reason string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queued[m.ID]
	if !ok {
		if e, ok = q.running[m.ID]; ok {
			q.release(m.ID)
			q.queued[m.ID] = e
		}
	}
	if !ok {
		return 0, fmt.Errorf("%w: match %d", ErrNotQueued, m.ID)
	}
	e.match = m.Clone()
	e.delays++
	if n := len(m.DelayReasons); n > 0 {
		e.delays = n
	}
	e.reason = reason
	if m.QueueKey != nil {
		e.key = *m.QueueKey
	} else {
		e.key = q.backOfBandLocked(m.ID, e.band(), e.key)
	}
	return q.positionLocked(m.ID), nil
}

// BackOfBand returns the key that places m behind every other queued match
// of its band.
func (q *ScheduleQueue) BackOfBand(m *models.Match) float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	own := m.OrderKey()
	if e, ok := q.queued[m.ID]; ok {
		own = e.key
	} else if e, ok := q.running[m.ID]; ok {
		own = e.key
	}
	return q.backOfBandLocked(m.ID, m.PriorityBand(), own)
}

func (q *ScheduleQueue) backOfBandLocked(matchID, band int, own float64) float64 {
	last := own
	for _, other := range q.queued {
		if other.match.ID != matchID && other.band() == band && other.key >= last {
			last = other.key + 1
		}
	}
	return last
}

// KeyAt returns the key that puts a queued match at a 1-based position inside
// its band. Positions past the end of the band map to the back.
func (q *ScheduleQueue) KeyAt(matchID, position int) (float64, error) {
	if position < 1 {
		return 0, fmt.Errorf("%w: position must be at least 1, got %d", ErrValidationFailed, position)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queued[matchID]
	if !ok {
		return 0, fmt.Errorf("%w: match %d", ErrNotQueued, matchID)
	}
	return q.keyAtLocked(e, position), nil
}

func (q *ScheduleQueue) keyAtLocked(e *queueEntry, position int) float64 {
	var band []*queueEntry
	for _, other := range q.ordered() {
		if other != e && other.band() == e.band() {
			band = append(band, other)
		}
	}
	idx := position - 1
	switch {
	case len(band) == 0:
		return e.key
	case idx == 0:
		return band[0].key - 1
	case idx >= len(band):
		return band[len(band)-1].key + 1
	default:
		return (band[idx-1].key + band[idx].key) / 2
	}
}

// Reschedule places a queued match at a 1-based position inside its band.
func (q *ScheduleQueue) Reschedule(matchID, position int) (int, error) {
	if position < 1 {
		return 0, fmt.Errorf("%w: position must be at least 1, got %d", ErrValidationFailed, position)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queued[matchID]
	if !ok {
		return 0, fmt.Errorf("%w: match %d", ErrNotQueued, matchID)
	}
	e.key = q.keyAtLocked(e, position)
	return q.positionLocked(matchID), nil
}

// Move applies the stored queue key of a queued match and returns its new
// position.
func (q *ScheduleQueue) Move(m *models.Match) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.queued[m.ID]
	if !ok {
		return 0, fmt.Errorf("%w: match %d", ErrNotQueued, m.ID)
	}
	e.match = m.Clone()
	e.key = m.OrderKey()
	return q.positionLocked(m.ID), nil
}

// Remove drops a match from the queue and frees its teams.
func (q *ScheduleQueue) Remove(matchID int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, queued := q.queued[matchID]
	delete(q.queued, matchID)
	_, running := q.running[matchID]
	q.release(matchID)
	return queued || running
}

func (q *ScheduleQueue) release(matchID int) {
	e, ok := q.running[matchID]
	if !ok {
		return
	}
	delete(q.running, matchID)
	for _, id := range e.match.TeamIDs() {
		if q.busy[id] == matchID {
			delete(q.busy, id)
		}
	}
}

func (q *ScheduleQueue) Position(matchID int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.positionLocked(matchID)
}

func (q *ScheduleQueue) positionLocked(matchID int) int {
	for i, e := range q.ordered() {
		if e.match.ID == matchID {
			return i + 1
		}
	}
	return 0
}

func (q *ScheduleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// Contains reports whether the match is queued or running.
func (q *ScheduleQueue) Contains(matchID int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, queued := q.queued[matchID]
	_, running := q.running[matchID]
	return queued || running
}

// Running returns snapshots of the matches currently on an arena.
func (q *ScheduleQueue) Running() []*models.Match {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.Match, 0, len(q.running))
	for _, e := range q.running {
		out = append(out, e.match.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot lists running matches followed by the queue in run order, each with
// its estimated start. A queued match waits for every match ahead of it:
// match duration plus turnover buffer each.
func (q *ScheduleQueue) Snapshot() []models.ScheduleSlot {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	slots := make([]models.ScheduleSlot, 0, len(q.running)+len(q.queued))
	running := make([]*queueEntry, 0, len(q.running))
	for _, e := range q.running {
		running = append(running, e)
	}
	sort.Slice(running, func(i, j int) bool { return running[i].match.ID < running[j].match.ID })
	for _, e := range running {
		start := now
		if e.match.StartedAt != nil {
			start = *e.match.StartedAt
		}
		slots = append(slots, q.slot(e, 0, start, 0))
	}

	var wait time.Duration
	for i, e := range q.ordered() {
		slots = append(slots, q.slot(e, i+1, now.Add(wait), wait))
		wait += e.duration + q.turnover
	}
	return slots
}

func (q *ScheduleQueue) slot(e *queueEntry, position int, start time.Time, wait time.Duration) models.ScheduleSlot {
	return models.ScheduleSlot{
		MatchID:        e.match.ID,
		TournamentID:   q.tournamentID,
		ClassID:        e.match.ClassID,
		Kind:           e.match.Kind,
		Band:           e.band(),
		Position:       position,
		TeamIDs:        e.match.TeamIDs(),
		Status:         e.match.Status,
		EstimatedStart: start,
		EstimatedWait:  models.Duration(wait),
		DelayCount:     e.delays,
		LastDelay:      e.reason,
	}
}

// Overdue returns running matches that should have ended more than grace ago.
func (q *ScheduleQueue) Overdue(now time.Time, grace time.Duration) []*models.Match {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.Match
	for _, e := range q.running {
		if e.match.StartedAt == nil {
			continue
		}
		if now.After(e.match.StartedAt.Add(e.duration + grace)) {
			out = append(out, e.match.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
