package server

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"

	"roulette/internal/game"
)

const WS_ACTION_TIMEOUT = 5 * time.Second

type clientMessage struct {
	Type   string        `json:"type"`
	Amount jsonRawAmount `json:"amount,omitempty"`
}

// jsonRawAmount accepts 100 and "100" alike.
type jsonRawAmount []byte

func (a *jsonRawAmount) UnmarshalJSON(b []byte) error {
	*a = append((*a)[:0], b...)
	return nil
}

// Present reports whether the message carried an amount field.
func (a jsonRawAmount) Present() bool {
	return len(a) > 0 && string(a) != "null"
}

func (a jsonRawAmount) Value() int64 {
	return game.ParseBet(strings.Trim(string(a), `"`))
}

// gameWebSocketHandler is the presentation channel of one session: it gets
// a state frame on every change and may send place_bet, spin and dismiss.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	sessionID := conn.Query("session_id")

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		data, _ := json.Marshal(game.WSMessage{Type: "error", Data: err.Error()})
		conn.WriteMessage(websocket.TextMessage, data)
		conn.Close()
		return
	}

	s.log.Infof("[WS] New connection for session: %s", sessionID)

	client := s.hub.RegisterClient(conn, sessionID)
	defer s.hub.UnregisterClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), WS_ACTION_TIMEOUT)
	snap, err := sess.Snapshot(ctx)
	cancel()
	if err == nil {
		client.Send(game.WSMessage{Type: "initial_state", Data: snap})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.log.Infof("[WS] Read error for session %s: %v", sessionID, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if reply := s.handleClientMessage(sess, message); reply != nil {
			client.Send(reply)
		}
	}
}

func (s *FiberServer) handleClientMessage(sess *game.Session, raw []byte) *game.WSMessage {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), WS_ACTION_TIMEOUT)
	defer cancel()

	var (
		snap game.Snapshot
		err  error
	)
	switch msg.Type {
	case "place_bet":
		snap, err = sess.PlaceBet(ctx, msg.Amount.Value())
	case "spin":
		if msg.Amount.Present() {
			snap, err = sess.PlaceAndSpin(ctx, msg.Amount.Value())
		} else {
			snap, err = sess.Spin(ctx)
		}
	case "dismiss":
		snap, err = sess.DismissResult(ctx)
	case "state":
		snap, err = sess.Snapshot(ctx)
	case "ping":
		return &game.WSMessage{Type: "pong"}
	default:
		return nil
	}

	resp := game.ActionResponse{Success: err == nil, Message: "ok", Snapshot: snap}
	if err != nil {
		resp.Message = err.Error()
	}
	return &game.WSMessage{Type: msg.Type, Data: resp}
}
