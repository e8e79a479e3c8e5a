package handlers

import (
	"net/http"

	"github.com/falcon-onpurpose/NRC-Tournamet-Brackets/services"
)

// QueueHandler drives the arena schedule of a tournament.
type QueueHandler struct {
	engine *services.Engine
}

func NewQueueHandler(engine *services.Engine) *QueueHandler {
	return &QueueHandler{engine: engine}
}

func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"queue": h.engine.QueueView(id)})
}

func (h *QueueHandler) StartNext(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.engine.StartNextMatch(r.Context(), id, actorFrom(r))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"match": match})
}

func (h *QueueHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	n, err := h.engine.RestoreQueue(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, jsonResponse{"restored": n, "queue": h.engine.QueueView(id)})
}
