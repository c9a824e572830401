package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
)

// RoomHandler exposes the thin REST surface around the live core: room
// creation, lookup by code, lifecycle actions, and final result persistence.
type RoomHandler struct {
	service *app.RoomService
}

func NewRoomHandler(service *app.RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

// Register attaches the room routes to the mux.
func (h *RoomHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.create)
	mux.HandleFunc("GET /rooms/{code}", h.get)
	mux.HandleFunc("DELETE /rooms/{id}", h.delete)
	mux.HandleFunc("POST /rooms/{id}/start", h.start)
	mux.HandleFunc("POST /rooms/{id}/end", h.end)
	mux.HandleFunc("GET /rooms/{id}/snapshot", h.snapshot)
	mux.HandleFunc("GET /rooms/{id}/participants", h.participants)
	mux.HandleFunc("POST /rooms/{id}/results", h.saveResult)
}

type createRoomRequest struct {
	TeacherID  string   `json:"teacherId"`
	Games      []string `json:"games"`
	Difficulty string   `json:"difficulty"`
}

func (h *RoomHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TeacherID == "" {
		writeError(w, http.StatusBadRequest, "invalid room request")
		return
	}
	room, err := h.service.CreateRoom(r.Context(), app.RoomConfig{
		TeacherID:  req.TeacherID,
		Games:      req.Games,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) get(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRoom(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) start(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.StartActivity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) end(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.EndActivity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *RoomHandler) participants(w http.ResponseWriter, r *http.Request) {
	participants := h.service.ListParticipants(r.Context(), r.PathValue("id"))
	if participants == nil {
		participants = []domain.Participant{}
	}
	writeJSON(w, http.StatusOK, participants)
}

func (h *RoomHandler) saveResult(w http.ResponseWriter, r *http.Request) {
	var result domain.GameResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil || result.StudentID == "" {
		writeError(w, http.StatusBadRequest, "invalid result")
		return
	}
	result.RoomID = r.PathValue("id")
	if err := h.service.SaveResult(r.Context(), result); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Message: msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrRoomNotActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrDuplicateCode):
		// retryable: the caller should simply attempt creation again
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
