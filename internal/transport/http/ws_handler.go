package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
)

// WSHandler exposes the game controllers over websockets. Caller identity
// is taken from the request as a given; authentication happens upstream.
type WSHandler struct {
	repo     game.Repository
	feed     game.Feed
	rankings *game.Aggregator
	upgrader websocket.Upgrader
}

func NewWSHandler(repo game.Repository, feed game.Feed, rankings *game.Aggregator) *WSHandler {
	return &WSHandler{
		repo:     repo,
		feed:     feed,
		rankings: rankings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type welcomePayload struct {
	Role   string `json:"role"`
	GameID string `json:"gameId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the connection and dispatches it to a host or
// participant session based on whether the caller is the game's host.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	userID := r.URL.Query().Get("userId")
	if gameID == "" || userID == "" {
		http.Error(w, "missing gameId or userId", http.StatusBadRequest)
		return
	}

	agg, err := h.repo.LoadGame(r.Context(), gameID)
	if errors.Is(err, domain.ErrGameNotFound) {
		http.Error(w, "game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load game", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if agg.Game.HostID == userID {
		h.serveHost(r, conn, gameID, userID)
	} else {
		h.serveParticipant(r, conn, gameID, userID)
	}
}

func (h *WSHandler) serveHost(r *http.Request, conn *websocket.Conn, gameID, hostID string) {
	ctrl := game.NewHostController(h.repo, h.feed, h.rankings, gameID, hostID)
	if err := ctrl.Start(r.Context()); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer ctrl.Close()

	states, cancel := ctrl.Subscribe()
	defer cancel()

	session := newWSSession(conn)
	// Queue the welcome before state forwarding starts so it is always
	// the first frame the client reads.
	session.send <- outboundMessage[any]{Type: "welcome", Payload: welcomePayload{Role: "host", GameID: gameID}}
	go forwardLoop(session, states)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "advance":
			if err := ctrl.Advance(r.Context()); err != nil {
				session.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		default:
			session.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	session.shutdown()
}

func (h *WSHandler) serveParticipant(r *http.Request, conn *websocket.Conn, gameID, participantID string) {
	ctrl := game.NewParticipantController(h.repo, h.feed, gameID, participantID)
	if err := ctrl.Start(r.Context()); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer ctrl.Close()

	states, cancel := ctrl.Subscribe()
	defer cancel()

	session := newWSSession(conn)
	session.send <- outboundMessage[any]{Type: "welcome", Payload: welcomePayload{Role: "participant", GameID: gameID}}
	go forwardLoop(session, states)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "join":
			if err := ctrl.Join(r.Context()); err != nil {
				session.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				session.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}}
				continue
			}
			if err := ctrl.SelectAnswer(payload.Answer); err != nil {
				session.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "submit":
			if err := ctrl.SubmitAnswer(r.Context()); err != nil {
				session.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		default:
			session.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	session.shutdown()
}

// wsSession serializes all writes onto one goroutine; gorilla connections
// do not allow concurrent writers.
type wsSession struct {
	send         chan outboundMessage[any]
	closeSignals chan struct{}
	writerDone   chan struct{}
	updatesDone  chan struct{}
}

func newWSSession(conn *websocket.Conn) *wsSession {
	s := &wsSession{
		send:         make(chan outboundMessage[any], 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
		updatesDone:  make(chan struct{}),
	}
	go func() {
		defer close(s.writerDone)
		for msg := range s.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()
	return s
}

// forwardLoop pushes every controller state snapshot to the client.
func forwardLoop[T any](s *wsSession, states <-chan T) {
	defer close(s.updatesDone)
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return
			}
			select {
			case s.send <- outboundMessage[any]{Type: "state", Payload: st}:
			case <-s.closeSignals:
				return
			}
		case <-s.closeSignals:
			return
		}
	}
}

func (s *wsSession) shutdown() {
	close(s.closeSignals)
	<-s.updatesDone
	close(s.send)
	<-s.writerDone
}
