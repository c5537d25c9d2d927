package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/bondcalc/internal/modules/session"
	"github.com/aristath/bondcalc/internal/modules/valuation"
)

const (
	wsWriteWait  = 10 * time.Second
	wsBufferSize = 32
)

// wsEdit is a client message: one raw field edit
type wsEdit struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// wsMessage is pushed to the client for every new state, or when an edit is rejected
type wsMessage struct {
	Type    string             `json:"type"` // "state" or "error"
	State   *session.State     `json:"state,omitempty"`
	Summary *valuation.Summary `json:"summary,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// HandleWebSocket handles GET /api/sessions/{id}/ws.
// The current state is sent on connect, then every state the store publishes.
// Clients may send {"field", "value"} edits over the same connection.
// The socket is closed with StatusGoingAway when the session is deleted or evicted.
func (h *SessionHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan wsMessage, wsBufferSize)
	push := func(msg wsMessage) {
		select {
		case out <- msg:
		default:
			h.log.Warn().Str("session_id", sess.ID).Msg("WebSocket client too slow, dropping message")
		}
	}

	sub := sess.Store.Subscribe(func(st session.State) {
		push(stateMessage(st))
	})
	defer sub.Unsubscribe()

	h.log.Info().Str("session_id", sess.ID).Msg("WebSocket client connected")

	go h.readEdits(ctx, cancel, conn, sess.ID, push)

	if err := h.writeMessage(ctx, conn, stateMessage(sess.Store.Snapshot())); err != nil {
		return
	}

	for {
		select {
		case <-sess.Done():
			conn.Close(websocket.StatusGoingAway, "session closed")
			h.log.Info().Str("session_id", sess.ID).Msg("Session closed, WebSocket client disconnected")
			return
		case <-ctx.Done():
			status := websocket.StatusNormalClosure
			if isClosed(sess.Done()) {
				status = websocket.StatusGoingAway
			}
			conn.Close(status, "")
			h.log.Info().Str("session_id", sess.ID).Msg("WebSocket client disconnected")
			return
		case msg := <-out:
			if err := h.writeMessage(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

// readEdits applies client edits until the connection or session goes away
func (h *SessionHandlers) readEdits(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, id string, push func(wsMessage)) {
	defer cancel()

	for {
		var edit wsEdit
		if err := wsjson.Read(ctx, conn, &edit); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.log.Debug().Err(err).Str("session_id", id).Msg("WebSocket read ended")
			}
			return
		}

		// Get refreshes last access so an active socket keeps the session alive
		sess, err := h.sessions.Get(id)
		if err != nil {
			return
		}
		if err := sess.Input.SetField(edit.Field, edit.Value); err != nil {
			push(wsMessage{Type: "error", Error: err.Error()})
		}
	}
}

func (h *SessionHandlers) writeMessage(ctx context.Context, conn *websocket.Conn, msg wsMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteWait)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		if ctx.Err() == nil {
			h.log.Warn().Err(err).Msg("WebSocket write failed")
		}
		return err
	}
	return nil
}

func isClosed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func stateMessage(st session.State) wsMessage {
	return wsMessage{
		Type:    "state",
		State:   &st,
		Summary: valuation.Summarize(st.Result),
	}
}
