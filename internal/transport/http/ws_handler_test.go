package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
	"livequiz-service/internal/infra/memory"
)

func TestWebSocketGameFlow(t *testing.T) {
	feed := memory.NewFeed()
	store := memory.NewStore(feed)
	store.AddQuiz(sampleQuiz())
	store.AddGame(domain.Game{ID: "game-1", HostID: "host-1", QuizID: "quiz-1", Title: "Test game"})

	wsHandler := NewWSHandler(store, feed, game.NewAggregator(store))
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	hostConn := dial(t, server.URL, "game-1", "host-1")
	defer hostConn.Close()
	participantConn := dial(t, server.URL, "game-1", "alice")
	defer participantConn.Close()

	if role := readWelcome(t, hostConn); role != "host" {
		t.Fatalf("expected host role, got %s", role)
	}
	if role := readWelcome(t, participantConn); role != "participant" {
		t.Fatalf("expected participant role, got %s", role)
	}

	writeMsg(t, participantConn, map[string]any{"type": "join"})
	waitForPhase(t, participantConn, float64(game.ParticipantWaiting))

	writeMsg(t, hostConn, map[string]any{"type": "advance"})
	waitForPhase(t, hostConn, float64(game.HostOnQuestion))
	waitForPhase(t, participantConn, float64(game.ParticipantAnswering))

	writeMsg(t, participantConn, map[string]any{
		"type":    "select",
		"payload": map[string]any{"answer": "4"},
	})
	writeMsg(t, participantConn, map[string]any{"type": "submit"})
	waitForPhase(t, participantConn, float64(game.ParticipantAnswered))

	// Advancing past the single question finishes the game everywhere.
	// The first finished snapshot may precede the standings write, so the
	// participant reads frames until the ranking arrives.
	writeMsg(t, hostConn, map[string]any{"type": "advance"})
	waitForPhase(t, hostConn, float64(game.HostFinished))
	ranking := waitForRanking(t, participantConn)

	if len(ranking) != 1 {
		t.Fatalf("expected final ranking with one entry, got %v", ranking)
	}
	entry := ranking[0].(map[string]any)
	if entry["participantId"] != "alice" || entry["points"] != float64(1) {
		t.Fatalf("expected alice with 1 point, got %v", entry)
	}
}

func TestWebSocketUnknownGame(t *testing.T) {
	feed := memory.NewFeed()
	store := memory.NewStore(feed)
	wsHandler := NewWSHandler(store, feed, game.NewAggregator(store))

	server := httptest.NewServer(http.HandlerFunc(wsHandler.ServeWS))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "?gameId=missing&userId=u1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail for unknown game")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func dial(t *testing.T, serverURL, gameID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + serverURL[len("http"):] + "/ws?gameId=" + gameID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %v: %v", msg["type"], err)
	}
}

func readWelcome(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	typ, payload := readNext(t, conn)
	if typ != "welcome" {
		t.Fatalf("expected welcome first, got %s", typ)
	}
	role, _ := payload["role"].(string)
	return role
}

// waitForPhase reads state messages until one carries the wanted phase.
func waitForPhase(t *testing.T, conn *websocket.Conn, phase float64) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		typ, payload := readNext(t, conn)
		if typ == "error" {
			t.Fatalf("unexpected error message: %v", payload)
		}
		if typ != "state" {
			continue
		}
		if got, _ := payload["phase"].(float64); got == phase {
			return payload
		}
	}
	t.Fatalf("never observed phase %v", phase)
	return nil
}

// waitForRanking reads state messages until a finished snapshot carries
// the final standings.
func waitForRanking(t *testing.T, conn *websocket.Conn) []any {
	t.Helper()
	for i := 0; i < 20; i++ {
		typ, payload := readNext(t, conn)
		if typ == "error" {
			t.Fatalf("unexpected error message: %v", payload)
		}
		if typ != "state" {
			continue
		}
		if got, _ := payload["phase"].(float64); got != float64(game.ParticipantFinished) {
			continue
		}
		if ranking, ok := payload["ranking"].([]any); ok && len(ranking) > 0 {
			return ranking
		}
	}
	t.Fatalf("never observed the final ranking")
	return nil
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Sums",
		Questions: []domain.QuizQuestion{
			{
				QuizID:       "quiz-1",
				Order:        0,
				AnswersOrder: []string{"3", "4", "5"},
				Question: domain.Question{
					ID:               "q1",
					Prompt:           "What is 2 + 2?",
					CorrectAnswer:    "4",
					IncorrectAnswers: []string{"3", "5"},
				},
			},
		},
	}
}
