package game

import (
	"context"

	"livequiz-service/internal/domain"
)

// Repository is the typed read/write surface over the durable store for a
// single game aggregate. Implementations publish one change-feed event per
// committed mutation; reads never publish.
type Repository interface {
	// LoadGame fetches the game plus its quiz with the question join
	// sorted by order ascending. The repository sorts; callers must not
	// assume the store returns sorted rows. Returns domain.ErrGameNotFound
	// when the game does not exist.
	LoadGame(ctx context.Context, gameID string) (domain.GameAggregate, error)

	// AdvanceQuestion moves the active pointer to nextQuestionID and
	// clears the finished flag. The question must belong to the game's
	// quiz; a rejected write surfaces as domain.ErrConflict.
	AdvanceQuestion(ctx context.Context, gameID, nextQuestionID string) error

	// FinishGame sets is_finished and resets the active pointer to null.
	FinishGame(ctx context.Context, gameID string) error

	// JoinGame inserts the roster row. A uniqueness violation maps to
	// domain.ErrAlreadyJoined rather than a fatal error.
	JoinGame(ctx context.Context, gameID, participantID string) error

	// SubmitAnswer derives correctness against the question's correct
	// answer at call time and inserts a write-once row, returning the
	// verdict. A pre-existing triple maps to domain.ErrAlreadySubmitted;
	// answers are immutable once recorded.
	SubmitAnswer(ctx context.Context, gameID, participantID, questionID, answerText string) (bool, error)

	// GetAnswer reports whether the participant already answered the
	// question, so a reconnecting client can recover its answered state.
	GetAnswer(ctx context.Context, gameID, participantID, questionID string) (domain.Answer, bool, error)

	// ListParticipants returns the roster ordered by join time.
	ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error)

	// ListGameRanking returns the materialized standings for a finished
	// game, best rank first.
	ListGameRanking(ctx context.Context, gameID string) ([]domain.RankingEntry, error)
}
