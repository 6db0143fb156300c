package game_test

import (
	"context"
	"testing"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
	"livequiz-service/internal/infra/memory"
)

const (
	testGameID = "game-1"
	testQuizID = "quiz-1"
	testHostID = "host-1"
)

// fixture bundles a seeded store with a live in-process feed.
type fixture struct {
	store *memory.Store
	feed  *memory.Feed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	feed := memory.NewFeed()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	store := memory.NewStoreWithClock(feed, clock)
	store.AddQuiz(threeQuestionQuiz())
	store.AddGame(domain.Game{
		ID:     testGameID,
		HostID: testHostID,
		QuizID: testQuizID,
		Title:  "Friday pub quiz",
	})
	return &fixture{store: store, feed: feed}
}

func (f *fixture) host(t *testing.T) *game.HostController {
	t.Helper()
	ctrl := game.NewHostController(f.store, f.feed, game.NewAggregator(f.store), testGameID, testHostID)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl
}

func (f *fixture) participant(t *testing.T, participantID string) *game.ParticipantController {
	t.Helper()
	ctrl := game.NewParticipantController(f.store, f.feed, testGameID, participantID)
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("start participant: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Close() })
	return ctrl
}

// waitForState polls the participant view until cond holds, for flows
// where the update arrives over the asynchronous feed.
func waitForState(t *testing.T, p *game.ParticipantController, cond func(game.ParticipantState) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(p.State()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state condition not met before deadline, last state %+v", p.State())
}

func threeQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    testQuizID,
		Title: "Capitals and sums",
		Questions: []domain.QuizQuestion{
			{
				QuizID:       testQuizID,
				Order:        0,
				AnswersOrder: []string{"3", "4", "5"},
				Question: domain.Question{
					ID:               "q1",
					Prompt:           "What is 2 + 2?",
					CorrectAnswer:    "4",
					IncorrectAnswers: []string{"3", "5"},
				},
			},
			{
				QuizID:       testQuizID,
				Order:        1,
				AnswersOrder: []string{"Lyon", "Paris", "Marseille"},
				Question: domain.Question{
					ID:               "q2",
					Prompt:           "What is the capital of France?",
					CorrectAnswer:    "Paris",
					IncorrectAnswers: []string{"Lyon", "Marseille"},
				},
			},
			{
				QuizID:       testQuizID,
				Order:        2,
				AnswersOrder: []string{"Mercury", "Venus", "Mars"},
				Question: domain.Question{
					ID:               "q3",
					Prompt:           "Which planet is closest to the sun?",
					CorrectAnswer:    "Mercury",
					IncorrectAnswers: []string{"Venus", "Mars"},
				},
			},
		},
	}
}
