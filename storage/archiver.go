package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
)

const archiveTimeout = 30 * time.Second

// ClassArchive is the document written when a class finishes.
type ClassArchive struct {
	TournamentID int            `json:"tournament_id"`
	ClassID      int            `json:"class_id"`
	Events       []events.Event `json:"events"`
	ArchivedAt   time.Time      `json:"archived_at"`
}

// Archiver collects every event per class and uploads the log once the
// class completes. Uploads run in the background; Wait blocks until they finish.
type Archiver struct {
	store  ObjectStore
	logger *slog.Logger

	mu   sync.Mutex
	logs map[int][]events.Event
	wg   sync.WaitGroup
}

func NewArchiver(store ObjectStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, logger: logger, logs: make(map[int][]events.Event)}
}

func ArchiveKey(tournamentID, classID int) string {
	return fmt.Sprintf("tournaments/%d/classes/%d/events.json", tournamentID, classID)
}

func (a *Archiver) Publish(ctx context.Context, e events.Event) {
	if e.ClassID == 0 {
		return
	}
	a.mu.Lock()
	a.logs[e.ClassID] = append(a.logs[e.ClassID], e)
	if e.Type != events.ClassCompleted {
		a.mu.Unlock()
		return
	}
	archive := ClassArchive{
		TournamentID: e.TournamentID,
		ClassID:      e.ClassID,
		Events:       a.logs[e.ClassID],
		ArchivedAt:   time.Now().UTC(),
	}
	delete(a.logs, e.ClassID)
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		if err := a.upload(uploadCtx, archive); err != nil {
			a.logger.Error("failed to archive class event log", "tournament_id", archive.TournamentID,
				"class_id", archive.ClassID, "error", err)
		}
	}()
}

func (a *Archiver) upload(ctx context.Context, archive ClassArchive) error {
	body, err := json.Marshal(archive)
	if err != nil {
		return fmt.Errorf("failed to encode class archive: %w", err)
	}
	key := ArchiveKey(archive.TournamentID, archive.ClassID)
	result, err := a.store.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	a.logger.Info("class event log archived", "tournament_id", archive.TournamentID,
		"class_id", archive.ClassID, "events", len(archive.Events), "location", result.Location)
	return nil
}

// Pending reports how many classes have buffered, unarchived events.
func (a *Archiver) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.logs)
}

func (a *Archiver) Wait() {
	a.wg.Wait()
}
