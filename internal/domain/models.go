package domain

import "time"

// Question is quiz content owned by an authoring category, never by a game.
type Question struct {
	ID               string   `json:"id"`
	Prompt           string   `json:"prompt"`
	CorrectAnswer    string   `json:"correctAnswer"`
	IncorrectAnswers []string `json:"incorrectAnswers"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	AudioURL         string   `json:"audioUrl,omitempty"`
	VideoURL         string   `json:"videoUrl,omitempty"`
}

// QuizQuestion pins a question into a quiz at a fixed position with a
// fixed answer permutation. AnswersOrder is snapshotted when the quiz is
// authored so every participant sees the same option ordering.
type QuizQuestion struct {
	QuizID       string   `json:"quizId"`
	Order        int      `json:"order"`
	AnswersOrder []string `json:"answersOrder"`
	Question     Question `json:"question"`
}

// Quiz is an ordered collection of questions. Content is immutable for
// scoring once a game references it.
type Quiz struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Questions   []QuizQuestion `json:"questions"`
}

// Game is one live playthrough of a quiz. ActiveQuestionID empty means the
// game has not started (or has finished). The host is the only writer of
// ActiveQuestionID and IsFinished.
type Game struct {
	ID               string    `json:"id"`
	HostID           string    `json:"hostId"`
	QuizID           string    `json:"quizId"`
	TournamentID     string    `json:"tournamentId,omitempty"`
	Title            string    `json:"title"`
	ActiveQuestionID string    `json:"activeQuestionId,omitempty"`
	IsFinished       bool      `json:"isFinished"`
	CreatedAt        time.Time `json:"createdAt"`
}

// GameAggregate is the full shared state a client re-reads on every
// reconcile: the game row plus its quiz with questions sorted by order.
type GameAggregate struct {
	Game Game `json:"game"`
	Quiz Quiz `json:"quiz"`
}

// ActiveQuestion returns the quiz question the game currently points at.
func (a GameAggregate) ActiveQuestion() (QuizQuestion, bool) {
	return a.QuestionByID(a.Game.ActiveQuestionID)
}

// QuestionByID looks up a question of the game's quiz by question ID.
func (a GameAggregate) QuestionByID(questionID string) (QuizQuestion, bool) {
	if questionID == "" {
		return QuizQuestion{}, false
	}
	for _, q := range a.Quiz.Questions {
		if q.Question.ID == questionID {
			return q, true
		}
	}
	return QuizQuestion{}, false
}

// QuestionIndex returns the 0-based position of a question in the quiz
// order, or -1 when the question does not belong to the quiz.
func (a GameAggregate) QuestionIndex(questionID string) int {
	for i, q := range a.Quiz.Questions {
		if q.Question.ID == questionID {
			return i
		}
	}
	return -1
}

// Participant is a roster row. Created once by the participant's own join,
// never updated or deleted by normal flow.
type Participant struct {
	GameID        string    `json:"gameId"`
	ParticipantID string    `json:"participantId"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// Answer is a write-once submission. IsCorrect is derived at submission
// time against the question's correct answer.
type Answer struct {
	GameID        string    `json:"gameId"`
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	AnswerText    string    `json:"answerText"`
	IsCorrect     bool      `json:"isCorrect"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// RankingEntry is a materialized per-game standing. Rank is dense: equal
// points share a rank and the next distinct score takes rank+1.
type RankingEntry struct {
	GameID        string `json:"gameId"`
	ParticipantID string `json:"participantId"`
	Points        int    `json:"points"`
	Rank          int    `json:"rank"`
}

// TournamentEntry aggregates a participant's points across every finished
// game of a tournament. Rank is 1-based sort position.
type TournamentEntry struct {
	TournamentID  string `json:"tournamentId"`
	ParticipantID string `json:"participantId"`
	Points        int    `json:"points"`
	Rank          int    `json:"rank"`
}
