package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements the game repository and ranking store contracts on
// Postgres. Every committed mutation of the game row, the roster, or the
// standings emits exactly one change-feed event; reads never publish.
type Store struct {
	pool *pgxpool.Pool
	feed game.Publisher
}

// NewStore builds a store over an existing pool. feed may be nil when no
// change notifications are needed.
func NewStore(pool *pgxpool.Pool, feed game.Publisher) *Store {
	return &Store{pool: pool, feed: feed}
}

func (s *Store) LoadGame(ctx context.Context, gameID string) (domain.GameAggregate, error) {
	var g domain.Game
	err := s.pool.QueryRow(ctx, `
		SELECT id, host_id, quiz_id, tournament_id, title,
		       COALESCE(active_question_id, ''), is_finished, created_at
		FROM games WHERE id = $1
	`, gameID).Scan(&g.ID, &g.HostID, &g.QuizID, &g.TournamentID, &g.Title,
		&g.ActiveQuestionID, &g.IsFinished, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameAggregate{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.GameAggregate{}, fmt.Errorf("load game: %w", err)
	}

	var quiz domain.Quiz
	err = s.pool.QueryRow(ctx, `
		SELECT id, title, description FROM quizzes WHERE id = $1
	`, g.QuizID).Scan(&quiz.ID, &quiz.Title, &quiz.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameAggregate{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.GameAggregate{}, fmt.Errorf("load quiz: %w", err)
	}

	// ORDER BY here is the repository's sorting guarantee; the table has
	// no inherent order.
	rows, err := s.pool.Query(ctx, `
		SELECT qq.ord, qq.answers_order,
		       q.id, q.prompt, q.correct_answer, q.incorrect_answers,
		       q.image_url, q.audio_url, q.video_url
		FROM quiz_questions qq
		JOIN questions q ON q.id = qq.question_id
		WHERE qq.quiz_id = $1
		ORDER BY qq.ord ASC
	`, g.QuizID)
	if err != nil {
		return domain.GameAggregate{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			qq              domain.QuizQuestion
			answersOrderRaw []byte
			incorrectRaw    []byte
		)
		if err := rows.Scan(&qq.Order, &answersOrderRaw,
			&qq.Question.ID, &qq.Question.Prompt, &qq.Question.CorrectAnswer, &incorrectRaw,
			&qq.Question.ImageURL, &qq.Question.AudioURL, &qq.Question.VideoURL); err != nil {
			return domain.GameAggregate{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(answersOrderRaw, &qq.AnswersOrder); err != nil {
			return domain.GameAggregate{}, fmt.Errorf("unmarshal answers order: %w", err)
		}
		if err := json.Unmarshal(incorrectRaw, &qq.Question.IncorrectAnswers); err != nil {
			return domain.GameAggregate{}, fmt.Errorf("unmarshal incorrect answers: %w", err)
		}
		qq.QuizID = quiz.ID
		quiz.Questions = append(quiz.Questions, qq)
	}
	if err := rows.Err(); err != nil {
		return domain.GameAggregate{}, fmt.Errorf("iterate questions: %w", err)
	}

	return domain.GameAggregate{Game: g, Quiz: quiz}, nil
}

func (s *Store) AdvanceQuestion(ctx context.Context, gameID, nextQuestionID string) error {
	// The EXISTS guard keeps the invariant that the active pointer always
	// references a question of the game's quiz.
	tag, err := s.pool.Exec(ctx, `
		UPDATE games g SET active_question_id = $2, is_finished = FALSE
		WHERE g.id = $1
		  AND EXISTS (
			SELECT 1 FROM quiz_questions qq
			WHERE qq.quiz_id = g.quiz_id AND qq.question_id = $2
		  )
	`, gameID, nextQuestionID)
	if err != nil {
		return fmt.Errorf("advance question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.gameExists(ctx, gameID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrGameNotFound
		}
		return domain.ErrConflict
	}
	return s.publish(ctx, game.GameTopic(gameID))
}

func (s *Store) FinishGame(ctx context.Context, gameID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE games SET is_finished = TRUE, active_question_id = NULL
		WHERE id = $1
	`, gameID)
	if err != nil {
		return fmt.Errorf("finish game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGameNotFound
	}
	return s.publish(ctx, game.GameTopic(gameID))
}

func (s *Store) JoinGame(ctx context.Context, gameID, participantID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO game_participants (game_id, participant_id) VALUES ($1, $2)
	`, gameID, participantID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return domain.ErrAlreadyJoined
			case pgForeignKeyViolation:
				return domain.ErrGameNotFound
			}
		}
		return fmt.Errorf("join game: %w", err)
	}
	return s.publish(ctx, game.ParticipantsTopic(gameID))
}

func (s *Store) SubmitAnswer(ctx context.Context, gameID, participantID, questionID, answerText string) (bool, error) {
	// Correctness is derived against the question's correct answer at
	// call time, then frozen into the row.
	var correctAnswer string
	err := s.pool.QueryRow(ctx, `
		SELECT q.correct_answer
		FROM games g
		JOIN quiz_questions qq ON qq.quiz_id = g.quiz_id AND qq.question_id = $2
		JOIN questions q ON q.id = qq.question_id
		WHERE g.id = $1
	`, gameID, questionID).Scan(&correctAnswer)
	if errors.Is(err, pgx.ErrNoRows) {
		exists, err := s.gameExists(ctx, gameID)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, domain.ErrGameNotFound
		}
		return false, domain.ErrQuestionNotFound
	}
	if err != nil {
		return false, fmt.Errorf("resolve correct answer: %w", err)
	}

	correct := answerText == correctAnswer
	_, err = s.pool.Exec(ctx, `
		INSERT INTO participant_answers (game_id, participant_id, question_id, answer_text, is_correct)
		VALUES ($1, $2, $3, $4, $5)
	`, gameID, participantID, questionID, answerText, correct)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, domain.ErrAlreadySubmitted
		}
		return false, fmt.Errorf("submit answer: %w", err)
	}
	return correct, nil
}

func (s *Store) GetAnswer(ctx context.Context, gameID, participantID, questionID string) (domain.Answer, bool, error) {
	var ans domain.Answer
	err := s.pool.QueryRow(ctx, `
		SELECT game_id, participant_id, question_id, answer_text, is_correct, submitted_at
		FROM participant_answers
		WHERE game_id = $1 AND participant_id = $2 AND question_id = $3
	`, gameID, participantID, questionID).Scan(&ans.GameID, &ans.ParticipantID,
		&ans.QuestionID, &ans.AnswerText, &ans.IsCorrect, &ans.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("get answer: %w", err)
	}
	return ans, true, nil
}

func (s *Store) ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, participant_id, joined_at
		FROM game_participants
		WHERE game_id = $1
		ORDER BY joined_at ASC, participant_id ASC
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var roster []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.GameID, &p.ParticipantID, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		roster = append(roster, p)
	}
	return roster, rows.Err()
}

func (s *Store) ListAnswers(ctx context.Context, gameID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, participant_id, question_id, answer_text, is_correct, submitted_at
		FROM participant_answers
		WHERE game_id = $1
		ORDER BY submitted_at ASC
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.GameID, &a.ParticipantID, &a.QuestionID,
			&a.AnswerText, &a.IsCorrect, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *Store) SaveRanking(ctx context.Context, gameID string, entries []domain.RankingEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ranking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM game_rankings WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("clear ranking: %w", err)
	}
	for pos, e := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO game_rankings (game_id, participant_id, points, rank, pos)
			VALUES ($1, $2, $3, $4, $5)
		`, gameID, e.ParticipantID, e.Points, e.Rank, pos); err != nil {
			return fmt.Errorf("insert ranking row: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ranking tx: %w", err)
	}
	// Clients that reloaded between the finish write and this commit saw a
	// finished game without standings; this event brings them back.
	return s.publish(ctx, game.GameTopic(gameID))
}

func (s *Store) ListGameRanking(ctx context.Context, gameID string) ([]domain.RankingEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, participant_id, points, rank
		FROM game_rankings
		WHERE game_id = $1
		ORDER BY pos ASC
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list ranking: %w", err)
	}
	defer rows.Close()
	return scanRankingRows(rows)
}

func (s *Store) ListTournamentRankings(ctx context.Context, tournamentID string) ([]domain.RankingEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.game_id, r.participant_id, r.points, r.rank
		FROM game_rankings r
		JOIN games g ON g.id = r.game_id
		WHERE g.tournament_id = $1 AND g.is_finished
	`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list tournament rankings: %w", err)
	}
	defer rows.Close()
	return scanRankingRows(rows)
}

func scanRankingRows(rows pgx.Rows) ([]domain.RankingEntry, error) {
	var entries []domain.RankingEntry
	for rows.Next() {
		var e domain.RankingEntry
		if err := rows.Scan(&e.GameID, &e.ParticipantID, &e.Points, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan ranking row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) gameExists(ctx context.Context, gameID string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1)`, gameID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check game: %w", err)
	}
	return exists, nil
}

func (s *Store) publish(ctx context.Context, topic string) error {
	if s.feed == nil {
		return nil
	}
	return s.feed.Publish(ctx, topic)
}
