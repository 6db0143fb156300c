package game

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"livequiz-service/internal/domain"
)

// ParticipantPhase enumerates the participant-side lifecycle, parameterized
// by the currently active question.
type ParticipantPhase int

const (
	ParticipantNotJoined ParticipantPhase = iota
	ParticipantWaiting
	ParticipantAnswering
	ParticipantAnswered
	ParticipantFinished
)

// ParticipantState is the view a presentation layer renders for one
// participant.
type ParticipantState struct {
	Phase         ParticipantPhase      `json:"phase"`
	GameTitle     string                `json:"gameTitle"`
	QuestionIndex int                   `json:"questionIndex"`
	QuestionCount int                   `json:"questionCount"`
	Question      domain.QuizQuestion   `json:"question"`
	Options       []string              `json:"options"`
	Selection     string                `json:"selection"`
	Submitted     domain.Answer         `json:"submitted"`
	Ranking       []domain.RankingEntry `json:"ranking,omitempty"`
}

// ParticipantController tracks one participant's join status, current
// question, answer status, and local selection. It is the only writer of
// that participant's answer rows. All coordination with the host goes
// through the store and its change feed; on every event the controller
// re-derives its view from a fresh aggregate.
type ParticipantController struct {
	repo          Repository
	feed          Feed
	gameID        string
	participantID string

	sf singleflight.Group

	mu                 sync.Mutex
	agg                domain.GameAggregate
	joined             bool
	observedQuestionID string
	selection          string
	answered           bool
	submitted          domain.Answer
	options            []string
	ranking            []domain.RankingEntry
	rankingLoaded      bool
	state              ParticipantState
	subs               map[chan ParticipantState]struct{}
	feedSub            Subscription
	rnd                *rand.Rand
	closed             bool
}

func NewParticipantController(repo Repository, feed Feed, gameID, participantID string) *ParticipantController {
	return &ParticipantController{
		repo:          repo,
		feed:          feed,
		gameID:        gameID,
		participantID: participantID,
		subs:          make(map[chan ParticipantState]struct{}),
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start performs the initial full load and subscribes to game-row events.
// The load is independent of the feed; notifications missed before this
// point are irrelevant because the aggregate is read fresh.
func (c *ParticipantController) Start(ctx context.Context) error {
	if err := c.Reconcile(ctx); err != nil {
		return err
	}
	sub, err := c.feed.Subscribe(ctx, GameTopic(c.gameID), func() {
		_ = c.Reconcile(context.Background())
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.feedSub = sub
	c.mu.Unlock()
	return nil
}

// Close unsubscribes from the feed and closes all state subscribers.
func (c *ParticipantController) Close() error {
	c.mu.Lock()
	sub := c.feedSub
	c.feedSub = nil
	c.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	return nil
}

// State returns the current derived view.
func (c *ParticipantController) State() ParticipantState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving a state snapshot after every
// reconcile. The caller must invoke the returned cancel function.
func (c *ParticipantController) Subscribe() (<-chan ParticipantState, func()) {
	ch := make(chan ParticipantState, 8)

	c.mu.Lock()
	c.subs[ch] = struct{}{}
	initial := c.state
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Join inserts the roster row. AlreadyJoined is an idempotent success: a
// participant joins a game at most once, and retrying must never surface
// as a failure.
func (c *ParticipantController) Join(ctx context.Context) error {
	err := c.repo.JoinGame(ctx, c.gameID, c.participantID)
	if err != nil && !errors.Is(err, domain.ErrAlreadyJoined) {
		return err
	}
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
	return c.Reconcile(ctx)
}

// SelectAnswer records a local selection. Legal only while a question is
// open for answering; nothing is persisted until SubmitAnswer.
func (c *ParticipantController) SelectAnswer(text string) error {
	if text == "" {
		return domain.ErrEmptySelection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Phase != ParticipantAnswering {
		return domain.ErrNotAnswering
	}
	c.selection = text
	c.state.Selection = text
	c.broadcastLocked()
	return nil
}

// SubmitAnswer persists the local selection. AlreadySubmitted also moves
// to Answered: the participant's prior click already succeeded and they
// must never be left stuck able to retry.
func (c *ParticipantController) SubmitAnswer(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return domain.ErrNotJoined
	}
	if c.state.Phase != ParticipantAnswering {
		c.mu.Unlock()
		return domain.ErrNotAnswering
	}
	if c.selection == "" {
		c.mu.Unlock()
		return domain.ErrEmptySelection
	}
	questionID := c.observedQuestionID
	text := c.selection
	c.mu.Unlock()

	correct, err := c.repo.SubmitAnswer(ctx, c.gameID, c.participantID, questionID, text)
	switch {
	case errors.Is(err, domain.ErrAlreadySubmitted):
		// Recover the stored row; the local selection may differ from it.
		stored, ok, getErr := c.repo.GetAnswer(ctx, c.gameID, c.participantID, questionID)
		if getErr != nil {
			return getErr
		}
		c.markAnswered(questionID, stored, ok)
		return nil
	case err != nil:
		return err
	}

	c.markAnswered(questionID, domain.Answer{
		GameID:        c.gameID,
		ParticipantID: c.participantID,
		QuestionID:    questionID,
		AnswerText:    text,
		IsCorrect:     correct,
	}, true)
	return nil
}

func (c *ParticipantController) markAnswered(questionID string, answer domain.Answer, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observedQuestionID != questionID {
		// The host moved on while the submit was in flight; the next
		// reconcile already re-derived the view for the new question.
		return
	}
	c.answered = true
	if ok {
		c.submitted = answer
	}
	c.state = c.deriveLocked()
	c.broadcastLocked()
}

// Reconcile discards the derived view and rebuilds it from a freshly
// loaded aggregate. Safe under dropped, duplicated, or reordered
// notifications; concurrent calls collapse onto one load.
func (c *ParticipantController) Reconcile(ctx context.Context) error {
	_, err, _ := c.sf.Do("reconcile", func() (interface{}, error) {
		return nil, c.reconcile(ctx)
	})
	return err
}

func (c *ParticipantController) reconcile(ctx context.Context) error {
	agg, err := c.repo.LoadGame(ctx, c.gameID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	prevQuestionID := c.observedQuestionID
	rankingLoaded := c.rankingLoaded
	c.mu.Unlock()

	active, hasActive := agg.ActiveQuestion()

	// A new question invalidates stale local state, so the answered
	// status is queried afresh. This also recovers a participant who
	// reconnects mid-question and already answered.
	var (
		storedAnswer domain.Answer
		hasStored    bool
	)
	questionChanged := hasActive && active.Question.ID != prevQuestionID
	if questionChanged && !agg.Game.IsFinished {
		storedAnswer, hasStored, err = c.repo.GetAnswer(ctx, c.gameID, c.participantID, active.Question.ID)
		if err != nil {
			return err
		}
	}

	// The final standings are fetched when the finished flag is observed
	// and kept once present. The finish event can land before the
	// standings commit; an empty result is treated as not-yet-written and
	// the fetch repeats on the event the ranking write itself emits.
	var ranking []domain.RankingEntry
	if agg.Game.IsFinished && !rankingLoaded {
		if ranking, err = c.repo.ListGameRanking(ctx, c.gameID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.agg = agg
	switch {
	case agg.Game.IsFinished:
		if !c.rankingLoaded && len(ranking) > 0 {
			c.ranking = ranking
			c.rankingLoaded = true
		}
		c.observedQuestionID = ""
		c.selection = ""
	case !hasActive:
		c.observedQuestionID = ""
		c.selection = ""
		c.answered = false
		c.submitted = domain.Answer{}
		c.options = nil
	case active.Question.ID != c.observedQuestionID:
		c.observedQuestionID = active.Question.ID
		c.selection = ""
		c.options = c.answerOptions(active)
		c.answered = hasStored
		if hasStored {
			c.submitted = storedAnswer
		} else {
			c.submitted = domain.Answer{}
		}
	}
	c.state = c.deriveLocked()
	c.broadcastLocked()
	return nil
}

func (c *ParticipantController) deriveLocked() ParticipantState {
	st := ParticipantState{
		GameTitle:     c.agg.Game.Title,
		QuestionIndex: -1,
		QuestionCount: len(c.agg.Quiz.Questions),
	}
	switch {
	case c.agg.Game.IsFinished:
		// A finished game preempts every other phase.
		st.Phase = ParticipantFinished
		st.Ranking = c.ranking
	case !c.joined:
		st.Phase = ParticipantNotJoined
	case c.observedQuestionID == "":
		st.Phase = ParticipantWaiting
	default:
		q, _ := c.agg.QuestionByID(c.observedQuestionID)
		st.Question = q
		st.QuestionIndex = c.agg.QuestionIndex(c.observedQuestionID)
		st.Options = c.options
		if c.answered {
			st.Phase = ParticipantAnswered
			st.Submitted = c.submitted
		} else {
			st.Phase = ParticipantAnswering
			st.Selection = c.selection
		}
	}
	return st
}

// answerOptions returns the option ordering shown to the participant:
// the quiz-authoring snapshot when present, otherwise a local shuffle of
// the full option set. The fallback never blocks answering.
func (c *ParticipantController) answerOptions(q domain.QuizQuestion) []string {
	if len(q.AnswersOrder) > 0 {
		options := make([]string, len(q.AnswersOrder))
		copy(options, q.AnswersOrder)
		return options
	}
	options := make([]string, 0, len(q.Question.IncorrectAnswers)+1)
	options = append(options, q.Question.CorrectAnswer)
	options = append(options, q.Question.IncorrectAnswers...)
	c.rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

func (c *ParticipantController) broadcastLocked() {
	for ch := range c.subs {
		select {
		case ch <- c.state:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- c.state
		}
	}
}
