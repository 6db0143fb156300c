package game

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"livequiz-service/internal/domain"
)

// HostPhase enumerates the host-side lifecycle of a game.
type HostPhase int

const (
	HostNotStarted HostPhase = iota
	HostOnQuestion
	HostFinished
)

// HostState is the view a presentation layer renders for the host. It is
// re-derived from a fresh aggregate on every reconcile.
type HostState struct {
	Phase         HostPhase             `json:"phase"`
	QuestionIndex int                   `json:"questionIndex"`
	QuestionCount int                   `json:"questionCount"`
	Question      domain.QuizQuestion   `json:"question"`
	LastQuestion  bool                  `json:"lastQuestion"`
	Roster        []domain.Participant  `json:"roster"`
	Ranking       []domain.RankingEntry `json:"ranking,omitempty"`
}

// HostController drives question progression and game termination. It is
// the single writer of the active-question pointer. Every transition
// writes through the repository and then re-reads the full aggregate, so
// the host's own view converges exactly like every participant's.
type HostController struct {
	repo     Repository
	feed     Feed
	rankings *Aggregator
	gameID   string
	hostID   string

	sf singleflight.Group

	mu            sync.Mutex
	agg           domain.GameAggregate
	state         HostState
	rankingLoaded bool
	subs          map[chan HostState]struct{}
	feedSubs      []Subscription
	closed        bool
}

func NewHostController(repo Repository, feed Feed, rankings *Aggregator, gameID, hostID string) *HostController {
	return &HostController{
		repo:     repo,
		feed:     feed,
		rankings: rankings,
		gameID:   gameID,
		hostID:   hostID,
		subs:     make(map[chan HostState]struct{}),
	}
}

// Start performs the initial full load, verifies the caller is the game's
// host, and subscribes to the change feed. The initial load never depends
// on the feed: notifications may already have been missed.
func (c *HostController) Start(ctx context.Context) error {
	if err := c.Reconcile(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	hostID := c.agg.Game.HostID
	c.mu.Unlock()
	if hostID != c.hostID {
		return domain.ErrNotHost
	}

	onEvent := func() {
		// Feed events carry no payload worth trusting; reload everything.
		_ = c.Reconcile(context.Background())
	}
	for _, topic := range []string{GameTopic(c.gameID), ParticipantsTopic(c.gameID)} {
		sub, err := c.feed.Subscribe(ctx, topic, onEvent)
		if err != nil {
			c.closeFeedSubs()
			return err
		}
		c.mu.Lock()
		c.feedSubs = append(c.feedSubs, sub)
		c.mu.Unlock()
	}
	return nil
}

// Close unsubscribes from the feed and closes all state subscribers.
func (c *HostController) Close() error {
	c.closeFeedSubs()
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

func (c *HostController) closeFeedSubs() {
	c.mu.Lock()
	subs := c.feedSubs
	c.feedSubs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}

// State returns the current derived view.
func (c *HostController) State() HostState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel receiving a state snapshot after every
// reconcile. The caller must invoke the returned cancel function.
func (c *HostController) Subscribe() (<-chan HostState, func()) {
	ch := make(chan HostState, 8)

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

// Advance is the single exposed host action, overloaded by position: from
// NotStarted it opens the first question, from question i it opens i+1,
// and from the last question it finishes the game instead. A write
// conflict is returned to the caller; local state stays unchanged until
// the next successful reconcile.
func (c *HostController) Advance(ctx context.Context) error {
	c.mu.Lock()
	agg := c.agg
	c.mu.Unlock()

	switch {
	case agg.Game.IsFinished:
		return nil
	case agg.Game.ActiveQuestionID == "":
		if len(agg.Quiz.Questions) == 0 {
			return c.finish(ctx)
		}
		first := agg.Quiz.Questions[0].Question.ID
		if err := c.repo.AdvanceQuestion(ctx, c.gameID, first); err != nil {
			return err
		}
	default:
		idx := agg.QuestionIndex(agg.Game.ActiveQuestionID)
		if idx < 0 {
			return domain.ErrQuestionNotFound
		}
		if idx == len(agg.Quiz.Questions)-1 {
			return c.finish(ctx)
		}
		next := agg.Quiz.Questions[idx+1].Question.ID
		if err := c.repo.AdvanceQuestion(ctx, c.gameID, next); err != nil {
			return err
		}
	}
	return c.Reconcile(ctx)
}

func (c *HostController) finish(ctx context.Context) error {
	if err := c.repo.FinishGame(ctx, c.gameID); err != nil {
		return err
	}
	// Answers are complete once the finished flag is committed; the host
	// side is the single writer of the materialized standings.
	if err := c.rankings.FinalizeGame(ctx, c.gameID); err != nil {
		return err
	}
	return c.Reconcile(ctx)
}

// Reconcile discards the local view and rebuilds it from a freshly loaded
// aggregate. Bursts of feed events collapse onto a single load.
func (c *HostController) Reconcile(ctx context.Context) error {
	_, err, _ := c.sf.Do("reconcile", func() (interface{}, error) {
		return nil, c.reconcile(ctx)
	})
	return err
}

func (c *HostController) reconcile(ctx context.Context) error {
	agg, err := c.repo.LoadGame(ctx, c.gameID)
	if err != nil {
		return err
	}
	roster, err := c.repo.ListParticipants(ctx, c.gameID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ranking := c.state.Ranking
	rankingLoaded := c.rankingLoaded
	c.mu.Unlock()

	loaded := rankingLoaded
	if agg.Game.IsFinished && !rankingLoaded {
		fetched, err := c.repo.ListGameRanking(ctx, c.gameID)
		if err != nil {
			return err
		}
		// An empty result with a non-empty roster means the standings are
		// not materialized yet; keep asking on later events.
		if len(fetched) > 0 || len(roster) == 0 {
			ranking = fetched
			loaded = true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.agg = agg
	c.rankingLoaded = loaded
	c.state = c.deriveLocked(roster, ranking)
	c.broadcastLocked()
	return nil
}

func (c *HostController) deriveLocked(roster []domain.Participant, ranking []domain.RankingEntry) HostState {
	st := HostState{
		QuestionIndex: -1,
		QuestionCount: len(c.agg.Quiz.Questions),
		Roster:        roster,
		Ranking:       ranking,
	}
	switch {
	case c.agg.Game.IsFinished:
		st.Phase = HostFinished
	case c.agg.Game.ActiveQuestionID == "":
		st.Phase = HostNotStarted
	default:
		st.Phase = HostOnQuestion
		if q, ok := c.agg.ActiveQuestion(); ok {
			st.Question = q
		}
		st.QuestionIndex = c.agg.QuestionIndex(c.agg.Game.ActiveQuestionID)
		st.LastQuestion = st.QuestionIndex == len(c.agg.Quiz.Questions)-1
	}
	return st
}

func (c *HostController) broadcastLocked() {
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
