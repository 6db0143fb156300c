package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
)

type answerKey struct {
	gameID        string
	participantID string
	questionID    string
}

// Store is an in-memory stand-in for the durable store, implementing the
// game repository and ranking store contracts. It publishes change events
// the same way the real store does, which makes it a faithful fixture for
// controller tests and the backing store for the no-postgres demo mode.
type Store struct {
	feed  game.Publisher
	clock func() time.Time

	mu           sync.RWMutex
	games        map[string]domain.Game
	quizzes      map[string]domain.Quiz
	participants map[string]map[string]domain.Participant
	answers      map[answerKey]domain.Answer
	rankings     map[string][]domain.RankingEntry
}

// NewStore builds an empty store. feed may be nil when no change
// notifications are needed (pure read-model tests).
func NewStore(feed game.Publisher) *Store {
	return NewStoreWithClock(feed, time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(feed game.Publisher, clock func() time.Time) *Store {
	return &Store{
		feed:         feed,
		clock:        clock,
		games:        make(map[string]domain.Game),
		quizzes:      make(map[string]domain.Quiz),
		participants: make(map[string]map[string]domain.Participant),
		answers:      make(map[answerKey]domain.Answer),
		rankings:     make(map[string][]domain.RankingEntry),
	}
}

// AddQuiz seeds quiz content.
func (s *Store) AddQuiz(quiz domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
}

// AddGame seeds a game row.
func (s *Store) AddGame(g domain.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.clock()
	}
	s.games[g.ID] = g
}

func (s *Store) LoadGame(ctx context.Context, gameID string) (domain.GameAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[gameID]
	if !ok {
		return domain.GameAggregate{}, domain.ErrGameNotFound
	}
	quiz, ok := s.quizzes[g.QuizID]
	if !ok {
		return domain.GameAggregate{}, domain.ErrQuizNotFound
	}

	// The contract sorts here; callers never rely on store order.
	questions := make([]domain.QuizQuestion, len(quiz.Questions))
	copy(questions, quiz.Questions)
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})
	quiz.Questions = questions

	return domain.GameAggregate{Game: g, Quiz: quiz}, nil
}

func (s *Store) AdvanceQuestion(ctx context.Context, gameID, nextQuestionID string) error {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrGameNotFound
	}
	if !s.questionInQuizLocked(g.QuizID, nextQuestionID) {
		s.mu.Unlock()
		return domain.ErrConflict
	}
	g.ActiveQuestionID = nextQuestionID
	g.IsFinished = false
	s.games[gameID] = g
	s.mu.Unlock()

	return s.publish(ctx, game.GameTopic(gameID))
}

func (s *Store) FinishGame(ctx context.Context, gameID string) error {
	s.mu.Lock()
	g, ok := s.games[gameID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrGameNotFound
	}
	g.IsFinished = true
	g.ActiveQuestionID = ""
	s.games[gameID] = g
	s.mu.Unlock()

	return s.publish(ctx, game.GameTopic(gameID))
}

func (s *Store) JoinGame(ctx context.Context, gameID, participantID string) error {
	s.mu.Lock()
	if _, ok := s.games[gameID]; !ok {
		s.mu.Unlock()
		return domain.ErrGameNotFound
	}
	roster := s.participants[gameID]
	if roster == nil {
		roster = make(map[string]domain.Participant)
		s.participants[gameID] = roster
	}
	if _, ok := roster[participantID]; ok {
		s.mu.Unlock()
		return domain.ErrAlreadyJoined
	}
	roster[participantID] = domain.Participant{
		GameID:        gameID,
		ParticipantID: participantID,
		JoinedAt:      s.clock(),
	}
	s.mu.Unlock()

	return s.publish(ctx, game.ParticipantsTopic(gameID))
}

func (s *Store) SubmitAnswer(ctx context.Context, gameID, participantID, questionID, answerText string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[gameID]
	if !ok {
		return false, domain.ErrGameNotFound
	}
	question, ok := s.questionLocked(g.QuizID, questionID)
	if !ok {
		return false, domain.ErrQuestionNotFound
	}

	key := answerKey{gameID: gameID, participantID: participantID, questionID: questionID}
	if _, ok := s.answers[key]; ok {
		return false, domain.ErrAlreadySubmitted
	}

	correct := answerText == question.Question.CorrectAnswer
	s.answers[key] = domain.Answer{
		GameID:        gameID,
		ParticipantID: participantID,
		QuestionID:    questionID,
		AnswerText:    answerText,
		IsCorrect:     correct,
		SubmittedAt:   s.clock(),
	}
	return correct, nil
}

func (s *Store) GetAnswer(ctx context.Context, gameID, participantID, questionID string) (domain.Answer, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ans, ok := s.answers[answerKey{gameID: gameID, participantID: participantID, questionID: questionID}]
	return ans, ok, nil
}

func (s *Store) ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster := make([]domain.Participant, 0, len(s.participants[gameID]))
	for _, p := range s.participants[gameID] {
		roster = append(roster, p)
	}
	sort.Slice(roster, func(i, j int) bool {
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].ParticipantID < roster[j].ParticipantID
	})
	return roster, nil
}

func (s *Store) ListAnswers(ctx context.Context, gameID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := make([]domain.Answer, 0)
	for key, ans := range s.answers {
		if key.gameID == gameID {
			answers = append(answers, ans)
		}
	}
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].SubmittedAt.Before(answers[j].SubmittedAt)
	})
	return answers, nil
}

func (s *Store) SaveRanking(ctx context.Context, gameID string, entries []domain.RankingEntry) error {
	stored := make([]domain.RankingEntry, len(entries))
	copy(stored, entries)

	s.mu.Lock()
	if _, ok := s.games[gameID]; !ok {
		s.mu.Unlock()
		return domain.ErrGameNotFound
	}
	s.rankings[gameID] = stored
	s.mu.Unlock()

	// Clients that reloaded between the finish write and this one saw a
	// finished game without standings; this event brings them back.
	return s.publish(ctx, game.GameTopic(gameID))
}

func (s *Store) ListGameRanking(ctx context.Context, gameID string) ([]domain.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.RankingEntry, len(s.rankings[gameID]))
	copy(entries, s.rankings[gameID])
	return entries, nil
}

func (s *Store) ListTournamentRankings(ctx context.Context, tournamentID string) ([]domain.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]domain.RankingEntry, 0)
	for gameID, g := range s.games {
		if g.TournamentID != tournamentID || !g.IsFinished {
			continue
		}
		rows = append(rows, s.rankings[gameID]...)
	}
	return rows, nil
}

func (s *Store) publish(ctx context.Context, topic string) error {
	if s.feed == nil {
		return nil
	}
	return s.feed.Publish(ctx, topic)
}

func (s *Store) questionInQuizLocked(quizID, questionID string) bool {
	_, ok := s.questionLocked(quizID, questionID)
	return ok
}

func (s *Store) questionLocked(quizID, questionID string) (domain.QuizQuestion, bool) {
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.QuizQuestion{}, false
	}
	for _, q := range quiz.Questions {
		if q.Question.ID == questionID {
			return q, true
		}
	}
	return domain.QuizQuestion{}, false
}
