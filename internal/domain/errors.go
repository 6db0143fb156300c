package domain

import "errors"

var (
	// ErrGameNotFound is returned when the referenced game does not exist.
	ErrGameNotFound = errors.New("game not found")
	// ErrQuizNotFound indicates the game's quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID that does not belong to the game's quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrConflict is returned when the store rejected a write made under a
	// stale assumption. Recoverable: reconcile and let the caller retry.
	ErrConflict = errors.New("conflicting write rejected")
	// ErrAlreadyJoined signals an idempotent join: the roster row already
	// exists. Not a failure.
	ErrAlreadyJoined = errors.New("participant already joined")
	// ErrAlreadySubmitted signals an idempotent submit: an answer for this
	// (game, participant, question) is already recorded. Not a failure.
	ErrAlreadySubmitted = errors.New("answer already submitted")
	// ErrNotHost is returned when a non-host identity drives a host-only action.
	ErrNotHost = errors.New("caller is not the game host")
	// ErrNotJoined is returned when a participant acts before joining.
	ErrNotJoined = errors.New("participant has not joined the game")
	// ErrNotAnswering is returned when an answer action arrives outside the
	// answering phase (no active question, or already answered).
	ErrNotAnswering = errors.New("no question open for answering")
	// ErrEmptySelection is returned when submit is called with no answer selected.
	ErrEmptySelection = errors.New("no answer selected")
)
