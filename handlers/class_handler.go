package handlers

import (
	"net/http"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
)

type ClassHandler struct {
	engine *services.Engine
}

func NewClassHandler(engine *services.Engine) *ClassHandler {
	return &ClassHandler{engine: engine}
}

// versionInput carries the class version the organizer's screen was built from.
type versionInput struct {
	ExpectedVersion int `json:"expected_version"`
}

func (h *ClassHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "classID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	class, err := h.engine.Class(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"class": class})
}

func (h *ClassHandler) NextRound(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "classID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input versionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.engine.ComputeNextRound(r.Context(), id, input.ExpectedVersion, actorFrom(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, result)
}

func (h *ClassHandler) Standings(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "classID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	standings, err := h.engine.Standings(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"standings": standings})
}

func (h *ClassHandler) StartElimination(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "classID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input versionInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.engine.StartElimination(r.Context(), id, input.ExpectedVersion, actorFrom(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, result)
}

func (h *ClassHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "classID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	snapshot, err := h.engine.ClassSnapshot(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, snapshot)
}
