package ws

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/emandor/imagetext_service/internal/telemetry"
	"github.com/emandor/imagetext_service/internal/textutil"
)

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

type Room string

const RoomSession Room = "session"

type Event string

const (
	EventProgress      Event = "ocr.event.progress"
	EventDone          Event = "ocr.event.done"
	EventError         Event = "ocr.event.error"
	EventSessionClosed Event = "ocr.event.session_closed"
)

type PayloadEvent struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ClientMessage struct {
	Action Action `json:"action"`
	Room   string `json:"room"`
}

type ProgressPayload struct {
	SessionID string `json:"session_id"`
	Percent   int    `json:"percent"`
}

type DonePayload struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	NoText    bool           `json:"no_text"`
	Stats     textutil.Stats `json:"stats"`
}

type ErrorPayload struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

// SessionRoom is the room a client joins to follow one session.
func SessionRoom(sessionID string) string { return string(RoomSession) + "." + sessionID }

type jsonWriter interface {
	WriteJSON(v any) error
}

// client serializes writes; websocket connections allow one writer at a time.
type client struct {
	mu sync.Mutex
	w  jsonWriter
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.WriteJSON(v)
}

type Hub struct {
	mu      sync.RWMutex
	clients map[jsonWriter]*client
	rooms   map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: map[jsonWriter]*client{},
		rooms:   map[string]map[*client]struct{}{},
	}
}

func (h *Hub) HandleWS(c *websocket.Conn) {
	tlog := telemetry.L().With().Str("module", "ws").Logger()
	tlog.Info().Msg("ws_connected")
	defer func() {
		h.drop(c)
		_ = c.Close()
		tlog.Info().Msg("ws_disconnected")
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			break
		}

		var cm ClientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			continue
		}

		switch cm.Action {
		case ActionJoin:
			h.join(c, cm.Room)
			tlog.Debug().Str("room", cm.Room).Msg("ws_join")
		case ActionLeave:
			h.leave(c, cm.Room)
			tlog.Debug().Str("room", cm.Room).Msg("ws_leave")
		}
	}
}

func (h *Hub) join(w jsonWriter, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	cl, ok := h.clients[w]
	if !ok {
		cl = &client{w: w}
		h.clients[w] = cl
	}
	if h.rooms[room] == nil {
		h.rooms[room] = map[*client]struct{}{}
	}
	h.rooms[room][cl] = struct{}{}
}

func (h *Hub) leave(w jsonWriter, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	cl, ok := h.clients[w]
	if !ok {
		return
	}
	delete(h.rooms[room], cl)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

// drop removes the connection from every room.
func (h *Hub) drop(w jsonWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cl, ok := h.clients[w]
	if !ok {
		return
	}
	delete(h.clients, w)
	for room, members := range h.rooms {
		delete(members, cl)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[SessionRoom(sessionID)]) > 0
}

func (h *Hub) publish(sessionID string, pl PayloadEvent) {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[SessionRoom(sessionID)]))
	for cl := range h.rooms[SessionRoom(sessionID)] {
		members = append(members, cl)
	}
	h.mu.RUnlock()

	for _, cl := range members {
		if err := cl.send(pl); err != nil {
			lg := telemetry.L()
			lg.Debug().Err(err).Str("session_id", sessionID).Msg("ws_write_fail")
		}
	}
}

func (h *Hub) BroadcastProgress(sessionID string, percent int) {
	if !h.HasSubscribers(sessionID) {
		return
	}
	h.publish(sessionID, PayloadEvent{
		Event: EventProgress,
		Data:  ProgressPayload{SessionID: sessionID, Percent: percent},
	})
}

// BroadcastDone is skipped entirely without subscribers; stats over a large
// text are not free.
func (h *Hub) BroadcastDone(sessionID, text string, noText bool) {
	if !h.HasSubscribers(sessionID) {
		return
	}
	h.publish(sessionID, PayloadEvent{
		Event: EventDone,
		Data: DonePayload{
			SessionID: sessionID,
			Text:      text,
			NoText:    noText,
			Stats:     textutil.Count(text),
		},
	})
}

func (h *Hub) BroadcastError(sessionID string, err error) {
	h.publish(sessionID, PayloadEvent{
		Event: EventError,
		Data:  ErrorPayload{SessionID: sessionID, Error: err.Error()},
	})
}

func (h *Hub) BroadcastSessionClosed(sessionID string) {
	h.publish(sessionID, PayloadEvent{
		Event: EventSessionClosed,
		Data:  ErrorPayload{SessionID: sessionID},
	})
}
