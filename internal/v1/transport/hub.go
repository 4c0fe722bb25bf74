package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumaboard/whiteboard/internal/v1/logging"
	"github.com/lumaboard/whiteboard/internal/v1/metrics"
	"github.com/lumaboard/whiteboard/internal/v1/room"
	"github.com/lumaboard/whiteboard/internal/v1/store"
	"github.com/lumaboard/whiteboard/internal/v1/wire"
)

// cleanupGracePeriod is how long an empty room survives before its in-memory
// state is dropped. A quick reconnect within the window keeps the warm state.
const cleanupGracePeriod = 30 * time.Second

// Hub is the central registry of live board rooms. At most one room exists
// per board id; the room's mutex is what gives that board its op order.
type Hub struct {
	rooms               map[string]*room.Room
	mu                  sync.Mutex
	pendingRoomCleanups map[string]*time.Timer
	gracePeriod         time.Duration

	store    store.Store
	resolver room.AuthResolver
	gate     room.RateGate

	allowedOrigins []string
}

// NewHub creates a Hub with its dependencies. allowedOrigins is the CSV-split
// ALLOWED_ORIGINS list; empty means all origins are accepted.
func NewHub(st store.Store, resolver room.AuthResolver, gate room.RateGate, allowedOrigins []string) *Hub {
	return &Hub{
		rooms:               make(map[string]*room.Room),
		pendingRoomCleanups: make(map[string]*time.Timer),
		gracePeriod:         cleanupGracePeriod,
		store:               st,
		resolver:            resolver,
		gate:                gate,
		allowedOrigins:      allowedOrigins,
	}
}

// ServeCollab handles GET /collab/{boardId}: path and origin checks, the
// upgrade, the hello frame, and pump startup. Authentication happens later,
// inside the join message.
func (h *Hub) ServeCollab(c *gin.Context) {
	boardID := c.Param("boardId")
	if !isValidBoardID(boardID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "board not found"})
		return
	}

	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.Header("Upgrade", "websocket")
		c.JSON(http.StatusUpgradeRequired, gin.H{"error": "websocket upgrade required"})
		return
	}

	if err := validateOrigin(c.Request, h.allowedOrigins); err != nil {
		logging.Warn(c.Request.Context(), "origin rejected",
			zap.String("origin", c.GetHeader("Origin")),
			zap.Error(err))
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.allowedOrigins) == nil
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	h.handleConnection(conn, boardID, c.ClientIP())
}

// handleConnection wires an upgraded connection into its room and starts the
// pumps.
func (h *Hub) handleConnection(conn wsConnection, boardID, ip string) {
	r := h.getOrCreateRoom(boardID)
	client := newClient(conn, r, ip)

	metrics.IncConnection()

	if hello, err := json.Marshal(wire.NewHello()); err == nil {
		client.Send(hello)
	}

	go client.writePump()
	go client.readPump()
}

// getOrCreateRoom returns the live room for the board, cancelling any
// pending cleanup, or creates one.
func (h *Hub) getOrCreateRoom(boardID string) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[boardID]; ok {
		if timer, pending := h.pendingRoomCleanups[boardID]; pending {
			timer.Stop()
			delete(h.pendingRoomCleanups, boardID)
			logging.Info(context.Background(), "cancelled pending room cleanup", zap.String("board_id", boardID))
		}
		return r
	}

	logging.Info(context.Background(), "creating board room", zap.String("board_id", boardID))
	r := room.NewRoom(boardID, h.store, h.resolver, h.gate, h.scheduleRoomCleanup)
	h.rooms[boardID] = r
	metrics.ActiveRooms.Inc()
	return r
}

// scheduleRoomCleanup arms a grace timer for an empty room. If the room is
// still empty when it fires, the room is dropped from the registry.
func (h *Hub) scheduleRoomCleanup(boardID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.pendingRoomCleanups[boardID]; ok {
		existing.Stop()
		delete(h.pendingRoomCleanups, boardID)
	}

	timer := time.AfterFunc(h.gracePeriod, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.pendingRoomCleanups, boardID)
		r, ok := h.rooms[boardID]
		if !ok || !r.IsEmpty() {
			return
		}
		delete(h.rooms, boardID)
		metrics.ActiveRooms.Dec()
		metrics.RoomSessions.DeleteLabelValues(boardID)
		logging.Info(context.Background(), "removed empty room after grace period", zap.String("board_id", boardID))
	})
	h.pendingRoomCleanups[boardID] = timer
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Shutdown closes every live connection so readers unwind and final
// snapshots flush.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "shutting down hub, closing all rooms")

	h.mu.Lock()
	for boardID, timer := range h.pendingRoomCleanups {
		timer.Stop()
		delete(h.pendingRoomCleanups, boardID)
	}
	rooms := make([]*room.Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.CloseAll(websocket.CloseGoingAway, "server shutting down")
	}

	logging.Info(ctx, "all rooms closed", zap.Int("count", len(rooms)))
	return nil
}
