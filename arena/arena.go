// Package arena is the engine's side of the arena collaborator: it sends
// start commands to the arena controller and turns its reports into Results.
package arena

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
)

var ErrUnreachable = errors.New("arena controller unreachable")

type Participant struct {
	TeamID int    `json:"team_id"`
	Name   string `json:"name"`
}

// StartParams is everything the arena needs to run one match. Version is
// echoed back on the result so it applies against the state it started from.
type StartParams struct {
	MatchID         int                 `json:"match_id"`
	TournamentID    int                 `json:"tournament_id"`
	ClassID         int                 `json:"class_id"`
	ClassName       string              `json:"class_name"`
	Label           string              `json:"label"`
	Team1           Participant         `json:"team1"`
	Team2           Participant         `json:"team2"`
	DurationSeconds int                 `json:"duration_seconds"`
	Hazards         models.HazardConfig `json:"hazards"`
	Version         int                 `json:"version"`
}

// Result is a terminal report from the arena. A timeout carries explicit
// scores like a normal completion; a reset means the match is being replayed.
type Result struct {
	MatchID    int                   `json:"match_id"`
	Version    int                   `json:"version"`
	WinnerID   *int                  `json:"winner_id,omitempty"`
	Scores     *models.Scores        `json:"scores,omitempty"`
	Completion models.CompletionKind `json:"completion"`
}

// Client starts matches on the arena.
type Client interface {
	StartMatch(ctx context.Context, params StartParams) error
}

// ResultHandler receives arena reports; cmd wires it to the engine.
type ResultHandler func(ctx context.Context, r Result) error

// OfflineClient records start commands without a controller attached; results
// are entered manually.
type OfflineClient struct {
	mu      sync.Mutex
	started []StartParams
	logger  *slog.Logger
}

func NewOfflineClient(logger *slog.Logger) *OfflineClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OfflineClient{logger: logger}
}

func (c *OfflineClient) StartMatch(_ context.Context, params StartParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, params)
	c.logger.Info("arena offline, match awaits manual result", "match_id", params.MatchID,
		"label", params.Label, "team1", params.Team1.Name, "team2", params.Team2.Name)
	return nil
}

func (c *OfflineClient) Started() []StartParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]StartParams(nil), c.started...)
}
