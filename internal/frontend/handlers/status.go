// Package handlers provides the relay's read-only HTTP status endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/relay/internal/protocol"
)

// RoomLister exposes the relay state the status endpoints report.
type RoomLister interface {
	Rooms() []protocol.RoomInfo
	Room(roomID string) (protocol.RoomInfo, bool)
	Stats() (connections, rooms int)
}

// Health is the body of GET /healthz.
type Health struct {
	Status      string `json:"status"`
	Instance    string `json:"instance"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

// StatusHandler serves health and room listings over plain HTTP.
type StatusHandler struct {
	lister     RoomLister
	instanceID string
	logger     *zap.Logger
}

// NewStatusHandler creates a StatusHandler.
//
// Precondition: lister and logger must be non-nil.
func NewStatusHandler(lister RoomLister, instanceID string, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		lister:     lister,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Register mounts the status routes on r.
func (h *StatusHandler) Register(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/rooms", h.handleListRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{roomId}", h.handleGetRoom).Methods(http.MethodGet)
}

func (h *StatusHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	conns, rooms := h.lister.Stats()
	h.respondJSON(w, http.StatusOK, Health{
		Status:      "ok",
		Instance:    h.instanceID,
		Connections: conns,
		Rooms:       rooms,
	})
}

func (h *StatusHandler) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"rooms": h.lister.Rooms(),
	})
}

func (h *StatusHandler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	info, ok := h.lister.Room(roomID)
	if !ok {
		h.respondJSON(w, http.StatusNotFound, map[string]string{
			"error": protocol.ErrMsgRoomNotFound,
		})
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

func (h *StatusHandler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("writing status response", zap.Error(err))
	}
}
