package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

const testDuration = 2 * time.Minute

func queueMatch(id, sequence int, kind models.MatchKind, round, team1, team2 int) *models.Match {
	m := &models.Match{
		ID:           id,
		TournamentID: 1,
		ClassID:      1,
		Kind:         kind,
		Slot1:        models.TeamSlot(team1),
		Slot2:        models.TeamSlot(team2),
		Status:       models.MatchStatusScheduled,
		Sequence:     sequence,
		Version:      1,
	}
	if kind == models.MatchKindSwiss {
		m.Swiss = &models.SwissDetails{Round: round}
	} else {
		m.Elimination = &models.EliminationDetails{Side: models.BracketWinners, Round: round, Position: 1}
	}
	return m
}

func newTestQueue(t *testing.T, matches ...*models.Match) *ScheduleQueue {
	t.Helper()
	q := NewScheduleQueue(1, time.Minute, func() time.Time { return testStart })
	for _, m := range matches {
		require.NoError(t, q.Enqueue(m, testDuration))
	}
	return q
}

func order(q *ScheduleQueue) []int {
	var ids []int
	for _, s := range q.Snapshot() {
		if s.Position > 0 {
			ids = append(ids, s.MatchID)
		}
	}
	return ids
}

func TestScheduleQueue_BandsThenFIFO(t *testing.T) {
	q := newTestQueue(t,
		queueMatch(10, 1, models.MatchKindElimination, 1, 1, 2),
		queueMatch(11, 3, models.MatchKindSwiss, 2, 3, 4),
		queueMatch(12, 2, models.MatchKindSwiss, 2, 5, 6),
	)
	assert.Equal(t, []int{12, 11, 10}, order(q))

	next, err := q.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, 12, next.ID)
	assert.Equal(t, 3, q.Len(), "next does not dequeue")

	// re-enqueueing refreshes without moving
	require.NoError(t, q.Enqueue(queueMatch(12, 2, models.MatchKindSwiss, 2, 5, 6), testDuration))
	assert.Equal(t, []int{12, 11, 10}, order(q))
}

func TestScheduleQueue_BusyTeams(t *testing.T) {
	first := queueMatch(1, 1, models.MatchKindSwiss, 1, 1, 2)
	q := newTestQueue(t,
		first,
		queueMatch(2, 2, models.MatchKindSwiss, 1, 2, 3),
		queueMatch(3, 3, models.MatchKindSwiss, 1, 4, 5),
	)
	require.NoError(t, q.MarkRunning(first))
	assert.True(t, q.Contains(1))
	assert.Equal(t, 2, q.Len())

	next, err := q.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, next.ID, "match 2 shares team 2 with the running match")

	require.NoError(t, q.MarkRunning(next))
	_, err = q.Next(nil)
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.Contains(t, err.Error(), "blocked")

	assert.True(t, q.Remove(1))
	next, err = q.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, next.ID)

	assert.ErrorIs(t, q.MarkRunning(queueMatch(99, 9, models.MatchKindSwiss, 1, 7, 8)), ErrNotQueued)
}

func TestScheduleQueue_FilterAndEmpty(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Next(nil)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, q.Enqueue(queueMatch(1, 1, models.MatchKindSwiss, 2, 1, 2), testDuration))
	require.NoError(t, q.Enqueue(queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4), testDuration))
	next, err := q.Next(func(m *models.Match) bool { return m.Round() == 1 })
	require.NoError(t, err)
	assert.Equal(t, 2, next.ID)

	unready := queueMatch(3, 3, models.MatchKindElimination, 2, 5, 6)
	unready.Slot2 = models.PendingSlot(7, models.OutcomeWinner)
	assert.ErrorIs(t, q.Enqueue(unready, testDuration), ErrMatchNotReady)
}

func TestScheduleQueue_DelayMovesToBackOfBand(t *testing.T) {
	delayed := queueMatch(1, 1, models.MatchKindSwiss, 1, 1, 2)
	q := newTestQueue(t,
		delayed,
		queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4),
		queueMatch(3, 3, models.MatchKindSwiss, 1, 5, 6),
		queueMatch(4, 4, models.MatchKindElimination, 1, 7, 8),
	)

	pos, err := q.Delay(delayed, "drive motor")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, []int{2, 3, 1, 4}, order(q))

	// delaying the last of its band keeps it there
	pos, err = q.Delay(delayed, "again")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)

	slots := q.Snapshot()
	assert.Equal(t, 2, slots[2].DelayCount)
	assert.Equal(t, "again", slots[2].LastDelay)

	// a running match goes back into the queue and frees its teams
	running := queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4)
	require.NoError(t, q.MarkRunning(running))
	pos, err = q.Delay(running, "arena door")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Empty(t, q.Running())

	_, err = q.Delay(queueMatch(50, 50, models.MatchKindSwiss, 1, 9, 10), "x")
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestScheduleQueue_Reschedule(t *testing.T) {
	q := newTestQueue(t,
		queueMatch(1, 1, models.MatchKindSwiss, 1, 1, 2),
		queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4),
		queueMatch(3, 3, models.MatchKindSwiss, 1, 5, 6),
		queueMatch(4, 4, models.MatchKindElimination, 1, 7, 8),
	)

	pos, err := q.Reschedule(3, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, []int{3, 1, 2, 4}, order(q))

	pos, err = q.Reschedule(3, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	assert.Equal(t, []int{1, 3, 2, 4}, order(q))

	// positions are inside the band: swiss never passes elimination
	pos, err = q.Reschedule(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, []int{3, 2, 1, 4}, order(q))

	pos, err = q.Reschedule(4, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, pos)

	_, err = q.Reschedule(1, 0)
	assert.ErrorIs(t, err, ErrValidationFailed)
	_, err = q.Reschedule(42, 1)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestScheduleQueue_SnapshotEstimates(t *testing.T) {
	running := queueMatch(1, 1, models.MatchKindSwiss, 1, 1, 2)
	q := newTestQueue(t,
		running,
		queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4),
		queueMatch(3, 3, models.MatchKindSwiss, 1, 5, 6),
		queueMatch(4, 4, models.MatchKindElimination, 1, 7, 8),
	)
	started := testStart.Add(-30 * time.Second)
	running.StartedAt = &started
	require.NoError(t, q.MarkRunning(running))

	slots := q.Snapshot()
	require.Len(t, slots, 4)
	assert.Equal(t, 0, slots[0].Position)
	assert.Equal(t, started, slots[0].EstimatedStart)

	waits := []time.Duration{0, 3 * time.Minute, 6 * time.Minute}
	for i, want := range waits {
		s := slots[i+1]
		assert.Equal(t, i+1, s.Position)
		assert.Equal(t, models.Duration(want), s.EstimatedWait)
		assert.Equal(t, testStart.Add(want), s.EstimatedStart)
	}
	assert.Equal(t, 1, slots[3].Band)
	assert.Equal(t, []int{7, 8}, slots[3].TeamIDs)
}

func TestScheduleQueue_Overdue(t *testing.T) {
	late := queueMatch(1, 1, models.MatchKindSwiss, 1, 1, 2)
	fresh := queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4)
	q := newTestQueue(t, late, fresh)

	lateStart := testStart.Add(-5 * time.Minute)
	late.StartedAt = &lateStart
	freshStart := testStart.Add(-time.Minute)
	fresh.StartedAt = &freshStart
	require.NoError(t, q.MarkRunning(late))
	require.NoError(t, q.MarkRunning(fresh))

	overdue := q.Overdue(testStart, 90*time.Second)
	require.Len(t, overdue, 1)
	assert.Equal(t, 1, overdue[0].ID)
}

func TestScheduleQueue_StoredKeys(t *testing.T) {
	first := queueMatch(1, 1, models.MatchKindSwiss, 1, 1, 2)
	q := newTestQueue(t,
		first,
		queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4),
	)

	back := q.BackOfBand(first)
	assert.Equal(t, float64(3), back)
	key, err := q.KeyAt(2, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(0), key)
	_, err = q.KeyAt(9, 1)
	assert.ErrorIs(t, err, ErrNotQueued)

	// a stored key places a new entry and moves a refreshed one
	stored := queueMatch(3, 3, models.MatchKindSwiss, 1, 5, 6)
	stored.QueueKey = &key
	require.NoError(t, q.Enqueue(stored, testDuration))
	assert.Equal(t, []int{3, 1, 2}, order(q))

	moved := first.Clone()
	moved.QueueKey = &back
	require.NoError(t, q.Enqueue(moved, testDuration))
	assert.Equal(t, []int{3, 2, 1}, order(q))

	last := queueMatch(2, 2, models.MatchKindSwiss, 1, 3, 4)
	behind := 4.0
	last.QueueKey = &behind
	pos, err := q.Move(last)
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, []int{3, 1, 2}, order(q))
}

func TestScheduleQueue_MarkRunningTwice(t *testing.T) {
	m := queueMatch(1, 1, models.MatchKindSwiss, 1, 1, 2)
	q := newTestQueue(t, m)
	require.NoError(t, q.MarkRunning(m))
	require.NoError(t, q.Enqueue(m, testDuration))
	require.NoError(t, q.MarkRunning(m))

	assert.Equal(t, 0, q.Len())
	require.Len(t, q.Running(), 1)
	_, err := q.Next(nil)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}
