package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/config"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/events"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/handlers"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/middleware"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/repositories"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
)

var secret = []byte("routes-test-secret")

type server struct {
	t      *testing.T
	h      http.Handler
	token  string
	events *events.Recorder
}

func newServer(t *testing.T) *server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := &events.Recorder{}
	engine := services.NewEngine(services.EngineDeps{
		Store:     repositories.NewMemoryStore(),
		Rules:     config.DefaultRules(),
		Publisher: recorder,
		Logger:    logger,
	})
	h := SetupRoutes(Handlers{
		Tournament: handlers.NewTournamentHandler(engine),
		Class:      handlers.NewClassHandler(engine),
		Match:      handlers.NewMatchHandler(engine),
		Queue:      handlers.NewQueueHandler(engine),
		WebSocket:  handlers.NewWebSocketHandler(events.NewHub(logger), engine, logger),
	}, secret, []string{"*"})

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"sub": "judge-anna", "role": middleware.RoleOrganizer}).SignedString(secret)
	require.NoError(t, err)
	return &server{t: t, h: h, token: token, events: recorder}
}

func (s *server) do(method, path string, body interface{}, out interface{}) int {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestRoutes_SwissRoundOverHTTP(t *testing.T) {
	s := newServer(t)

	var created struct {
		Tournament models.Tournament    `json:"tournament"`
		Classes    []models.RobotClass `json:"classes"`
	}
	code := s.do(http.MethodPost, "/tournaments/", map[string]interface{}{
		"name": "Spring Brawl", "swiss_rounds": 1, "rotation": "round_robin",
		"classes": []map[string]interface{}{{"name": "Antweight"}},
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, created.Classes, 1)
	tid, cid := created.Tournament.ID, created.Classes[0].ID

	var teamIDs []int
	for _, name := range []string{"Sawblaze", "Tombstone"} {
		var reg struct {
			Team models.Team `json:"team"`
		}
		code = s.do(http.MethodPost, fmt.Sprintf("/tournaments/%d/teams", tid),
			map[string]interface{}{"name": name, "tier": "advanced", "class_ids": []int{cid}}, &reg)
		require.Equal(t, http.StatusCreated, code)
		teamIDs = append(teamIDs, reg.Team.ID)
	}

	var class struct {
		Class models.RobotClass `json:"class"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/classes/%d", cid), nil, &class))

	// a stale version is refused with the current class
	var conflict map[string]interface{}
	code = s.do(http.MethodPost, fmt.Sprintf("/classes/%d/rounds", cid),
		map[string]int{"expected_version": class.Class.Version + 5}, &conflict)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, conflict, "current")

	var round struct {
		Matches []models.Match `json:"matches"`
	}
	code = s.do(http.MethodPost, fmt.Sprintf("/classes/%d/rounds", cid),
		map[string]int{"expected_version": class.Class.Version}, &round)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, round.Matches, 1)

	var started struct {
		Match models.Match `json:"match"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/tournaments/%d/queue/next", tid), nil, &started))
	assert.Equal(t, models.MatchStatusInProgress, started.Match.Status)

	var result struct {
		Match models.Match `json:"match"`
	}
	code = s.do(http.MethodPost, fmt.Sprintf("/matches/%d/result", started.Match.ID), map[string]interface{}{
		"expected_version": started.Match.Version, "winner_id": teamIDs[0], "completion": "completed",
	}, &result)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.MatchStatusCompleted, result.Match.Status)

	// rounds are exhausted
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/classes/%d", cid), nil, &class))
	code = s.do(http.MethodPost, fmt.Sprintf("/classes/%d/rounds", cid),
		map[string]int{"expected_version": class.Class.Version}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	var standings struct {
		Standings []models.Standing `json:"standings"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/classes/%d/standings", cid), nil, &standings))
	require.Len(t, standings.Standings, 2)
	assert.Equal(t, teamIDs[0], standings.Standings[0].TeamID)

	assert.NotEmpty(t, s.events.OfType(events.MatchCompleted))
}

func TestRoutes_AuthAndErrors(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/matches/999", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/matches/abc", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/tournaments/", map[string]interface{}{"bogus": 1}, nil))
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/operations/match/1", nil, nil))

	s.token = ""
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/tournaments/", map[string]interface{}{"name": "x"}, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", nil, nil))
}
