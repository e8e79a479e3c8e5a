package handlers

import (
	"net/http"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/models"
	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
)

type TournamentHandler struct {
	engine *services.Engine
}

func NewTournamentHandler(engine *services.Engine) *TournamentHandler {
	return &TournamentHandler{engine: engine}
}

func (h *TournamentHandler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	var spec services.TournamentSpec
	if err := readJSON(w, r, &spec); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, classes, err := h.engine.CreateTournament(r.Context(), spec)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, jsonResponse{"tournament": tournament, "classes": classes})
}

func (h *TournamentHandler) GetTournament(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament, err := h.engine.Tournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"tournament": tournament})
}

type registerTeamInput struct {
	Name     string                `json:"name"`
	Tier     models.ExperienceTier `json:"tier"`
	ClassIDs []int                 `json:"class_ids"`
}

// RegisterTeam also covers late registration while the classes are still in Swiss.
func (h *TournamentHandler) RegisterTeam(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input registerTeamInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	team := &models.Team{TournamentID: id, Name: input.Name, Tier: input.Tier, ClassIDs: input.ClassIDs}
	if err := h.engine.RegisterTeam(r.Context(), team); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, jsonResponse{"team": team})
}

func (h *TournamentHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	teams, err := h.engine.Teams(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"teams": teams})
}

func (h *TournamentHandler) NextWork(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	work, err := h.engine.NextEligibleWork(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"work": work})
}

func (h *TournamentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	stats, err := h.engine.MatchStatistics(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"statistics": stats})
}

func (h *TournamentHandler) PendingMatches(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	matches, err := h.engine.PendingMatches(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"matches": matches})
}
