package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"phonoroom-service/internal/app"
	"phonoroom-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// WSHandler upgrades HTTP requests to websockets and routes typed envelopes
// into the room use cases.
type WSHandler struct {
	service     *app.RoomService
	upgrader    websocket.Upgrader
	idleTimeout time.Duration
	sendBuffer  int
}

func NewWSHandler(service *app.RoomService, idleTimeout time.Duration, sendBuffer int) *WSHandler {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &WSHandler{
		service:     service,
		idleTimeout: idleTimeout,
		sendBuffer:  sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// client is the transport end of one connection. Its buffered send channel is
// the bounded outbox the session delivers into; a full channel marks the
// connection dead rather than blocking the broadcast.
type client struct {
	conn *websocket.Conn
	send chan outboundMessage
	done chan struct{}
	once sync.Once
}

var _ app.Outbox = (*client)(nil)

func newClient(conn *websocket.Conn, buffer int) *client {
	return &client{
		conn: conn,
		send: make(chan outboundMessage, buffer),
		done: make(chan struct{}),
	}
}

func (c *client) Deliver(msgType string, payload any) bool {
	select {
	case <-c.done:
		return true // already closing; the read loop resolves the leave
	default:
	}
	select {
	case c.send <- outboundMessage{Type: msgType, Payload: payload}:
		return true
	default:
		return false
	}
}

func (c *client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// ServeWS handles one connection for its whole lifetime. The connection must
// carry a resolvable roomCode (or roomId) query parameter or the upgrade is
// refused; presence itself is established by a join envelope.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomParam := r.URL.Query().Get("roomCode")
	if roomParam == "" {
		roomParam = r.URL.Query().Get("roomId")
	}
	if roomParam == "" {
		http.Error(w, "missing roomCode", http.StatusBadRequest)
		return
	}
	room, err := h.service.GetRoom(r.Context(), roomParam)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	c := newClient(conn, h.sendBuffer)
	go c.writeLoop()
	h.readLoop(r.Context(), c, room.ID)
	c.Close()
}

// readLoop is the single reader for the connection, which preserves the
// client's own message order. Any inbound frame, heartbeat included,
// refreshes the idle deadline; a silent connection is closed and resolved
// into a leave.
func (h *WSHandler) readLoop(ctx context.Context, c *client, roomID string) {
	conn := c.conn
	conn.SetReadLimit(maxMessageSize)

	connectionID := uuid.NewString()
	var participant domain.Participant
	joined := false

	defer func() {
		if joined {
			h.service.Leave(ctx, roomID, connectionID)
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case typeHeartbeat:
			// liveness only; the deadline refresh above is the whole effect

		case typeJoin:
			if joined {
				// one identity per connection; reconnecting means a new socket
				c.sendError(domain.ErrInvalidMessage)
				continue
			}
			payload, err := parseJoin(inbound.Payload)
			if err != nil {
				c.sendError(err)
				continue
			}
			target := roomID
			if payload.RoomID != "" {
				target = payload.RoomID
			}
			p := domain.Participant{ID: payload.ParticipantID, Name: payload.Name, Role: domain.Role(payload.Role)}
			room, err := h.service.Join(ctx, target, connectionID, p, c)
			if err != nil {
				c.sendError(err)
				continue
			}
			roomID = room.ID
			participant = p
			joined = true
			c.Deliver(app.MsgJoined, room)

		case typeStudentAnswered:
			if !joined {
				c.sendError(domain.ErrParticipantNotFound)
				continue
			}
			if participant.Role != domain.RoleStudent {
				c.sendError(domain.ErrInvalidMessage)
				continue
			}
			payload, err := parseAnswer(inbound.Payload)
			if err != nil {
				c.sendError(err)
				continue
			}
			_, err = h.service.SubmitAnswer(ctx, roomID, domain.AnswerEvent{
				StudentID:      participant.ID,
				StudentName:    participant.Name,
				QuestionID:     payload.QuestionID,
				SelectedAnswer: payload.SelectedAnswer,
				Correct:        *payload.IsCorrect,
				ElapsedMillis:  *payload.ElapsedMillis,
			})
			if err != nil {
				c.sendError(err)
			}

		case typeActivityStarted:
			if !joined || participant.Role != domain.RoleTeacher {
				c.sendError(domain.ErrInvalidMessage)
				continue
			}
			if _, err := h.service.StartActivity(ctx, roomID); err != nil {
				c.sendError(err)
			}

		case typeActivityEnded:
			if !joined || participant.Role != domain.RoleTeacher {
				c.sendError(domain.ErrInvalidMessage)
				continue
			}
			if _, err := h.service.EndActivity(ctx, roomID); err != nil {
				c.sendError(err)
			}

		default:
			c.sendError(domain.ErrInvalidMessage)
		}
	}
}

// sendError reports a failure to the offending connection only; errors never
// propagate to other participants.
func (c *client) sendError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.Deliver("error", errorPayload{Message: err.Error()})
}
