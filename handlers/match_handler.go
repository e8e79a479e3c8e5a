package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/arena"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
)

type MatchHandler struct {
	engine *services.Engine
}

func NewMatchHandler(engine *services.Engine) *MatchHandler {
	return &MatchHandler{engine: engine}
}

func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.engine.Match(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"match": match})
}

type resultInput struct {
	ExpectedVersion int                   `json:"expected_version"`
	WinnerID        *int                  `json:"winner_id"`
	Scores          *models.Scores        `json:"scores,omitempty"`
	Completion      models.CompletionKind `json:"completion"`
	Override        bool                  `json:"override"`
}

func (h *MatchHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input resultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.engine.ApplyResult(r.Context(), services.ResultInput{
		MatchID:         id,
		ExpectedVersion: input.ExpectedVersion,
		WinnerID:        input.WinnerID,
		Scores:          input.Scores,
		Completion:      input.Completion,
		Override:        input.Override,
		Actor:           actorFrom(r),
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, outcome)
}

type forfeitInput struct {
	ExpectedVersion int `json:"expected_version"`
	// AbsentTeamID 0 means neither team showed up.
	AbsentTeamID int `json:"absent_team_id"`
}

func (h *MatchHandler) Forfeit(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input forfeitInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.engine.Forfeit(r.Context(), id, input.ExpectedVersion, input.AbsentTeamID, actorFrom(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, outcome)
}

type resolveInput struct {
	ExpectedVersion int `json:"expected_version"`
	WinnerID        int `json:"winner_id"`
}

func (h *MatchHandler) ResolveForfeit(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input resolveInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.engine.ResolveForfeit(r.Context(), id, input.ExpectedVersion, input.WinnerID, actorFrom(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, outcome)
}

type delayInput struct {
	ExpectedVersion int    `json:"expected_version"`
	Reason          string `json:"reason"`
}

func (h *MatchHandler) Delay(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input delayInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.engine.Delay(r.Context(), id, input.ExpectedVersion, input.Reason, actorFrom(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, outcome)
}

type rescheduleInput struct {
	ExpectedVersion int `json:"expected_version"`
	Position        int `json:"position"`
}

func (h *MatchHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input rescheduleInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.engine.Reschedule(r.Context(), id, input.ExpectedVersion, input.Position, actorFrom(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, outcome)
}

var operationKinds = map[string]bool{"tournament": true, "robot_class": true, "match": true}

// Operations lists the write attempts recorded against one entity.
func (h *MatchHandler) Operations(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if !operationKinds[kind] {
		badRequestResponse(w, r, errors.New("kind must be one of tournament, robot_class, match"))
		return
	}
	id, err := getIDFromURL(r, "entityID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	ops, err := h.engine.Operations(r.Context(), kind, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"operations": ops})
}

// ReportArenaResult is the HTTP entry for arena controllers not on MQTT.
func (h *MatchHandler) ReportArenaResult(w http.ResponseWriter, r *http.Request) {
	var result arena.Result
	if err := readJSON(w, r, &result); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if result.MatchID <= 0 {
		badRequestResponse(w, r, errors.New("match_id is required"))
		return
	}
	if err := h.engine.ReportArenaResult(r.Context(), result); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
