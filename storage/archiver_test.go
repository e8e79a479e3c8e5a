package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
)

func classEvent(t events.Type, classID int) events.Event {
	e := events.New(t, 7, nil)
	e.ClassID = classID
	return e
}

func TestArchiver_UploadsLogOnClassCompleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := NewArchiver(store, nil)

	a.Publish(ctx, events.New(events.ConflictDetected, 7, nil))
	a.Publish(ctx, classEvent(events.PairingsGenerated, 1))
	a.Publish(ctx, classEvent(events.MatchCompleted, 1))
	a.Publish(ctx, classEvent(events.PairingsGenerated, 2))
	assert.Equal(t, 2, a.Pending())
	assert.Empty(t, store.Keys())

	// WHEN class 1 completes
	a.Publish(ctx, classEvent(events.ClassCompleted, 1))
	a.Wait()

	// THEN only its log is uploaded
	require.Equal(t, []string{ArchiveKey(7, 1)}, store.Keys())
	assert.Equal(t, 1, a.Pending())

	body, ok := store.Object(ArchiveKey(7, 1))
	require.True(t, ok)
	var archive ClassArchive
	require.NoError(t, json.Unmarshal(body, &archive))
	assert.Equal(t, 1, archive.ClassID)
	assert.Equal(t, 7, archive.TournamentID)
	require.Len(t, archive.Events, 3)
	assert.Equal(t, events.ClassCompleted, archive.Events[2].Type)
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		key  string
		want string
	}{
		{"no base", "", "a.json", ""},
		{"host only", "https://cdn.example.com", "tournaments/1/a.json", "https://cdn.example.com/tournaments/1/a.json"},
		{"base path", "https://cdn.example.com/nrc", "/a.json", "https://cdn.example.com/nrc/a.json"},
		{"base path with slash", "https://cdn.example.com/nrc/", "a.json", "https://cdn.example.com/nrc/a.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicURL(tt.base, tt.key, nil))
		})
	}
}
