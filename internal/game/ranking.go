package game

import (
	"context"
	"sort"

	"livequiz-service/internal/domain"
)

// RankingStore is the slice of the durable store the aggregator reads and
// writes. Correctness of the projections depends only on the underlying
// answer and ranking rows being complete at call time, which holds once
// the games in scope are finished.
type RankingStore interface {
	ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error)
	ListAnswers(ctx context.Context, gameID string) ([]domain.Answer, error)
	// SaveRanking materializes the standings and emits one game-topic
	// event after the write commits, so clients that observed the
	// finished flag before the standings existed reload once more.
	SaveRanking(ctx context.Context, gameID string, entries []domain.RankingEntry) error
	// ListTournamentRankings returns every ranking row belonging to
	// finished games of the tournament.
	ListTournamentRankings(ctx context.Context, tournamentID string) ([]domain.RankingEntry, error)
}

// Aggregator computes per-game and per-tournament standings on demand.
// Both projections are recomputed from rows, never incrementally maintained.
type Aggregator struct {
	store RankingStore
}

func NewAggregator(store RankingStore) *Aggregator {
	return &Aggregator{store: store}
}

// ComputeGameRanking sums one point per correct answer per participant.
// Every roster member appears, including those who never answered. Sorted
// by points descending; ties break on earliest join time, then participant
// ID, so equal scores still rank deterministically. Ranks are dense.
func (a *Aggregator) ComputeGameRanking(ctx context.Context, gameID string) ([]domain.RankingEntry, error) {
	participants, err := a.store.ListParticipants(ctx, gameID)
	if err != nil {
		return nil, err
	}
	answers, err := a.store.ListAnswers(ctx, gameID)
	if err != nil {
		return nil, err
	}

	points := make(map[string]int, len(participants))
	joined := make(map[string]int64, len(participants))
	for _, p := range participants {
		points[p.ParticipantID] = 0
		joined[p.ParticipantID] = p.JoinedAt.UnixNano()
	}
	for _, ans := range answers {
		if _, onRoster := points[ans.ParticipantID]; !onRoster {
			continue
		}
		if ans.IsCorrect {
			points[ans.ParticipantID]++
		}
	}

	entries := make([]domain.RankingEntry, 0, len(points))
	for id, pts := range points {
		entries = append(entries, domain.RankingEntry{
			GameID:        gameID,
			ParticipantID: id,
			Points:        pts,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		ji, jj := joined[entries[i].ParticipantID], joined[entries[j].ParticipantID]
		if ji != jj {
			return ji < jj
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})

	rank := 0
	lastPoints := -1
	for i := range entries {
		if entries[i].Points != lastPoints {
			rank++
			lastPoints = entries[i].Points
		}
		entries[i].Rank = rank
	}
	return entries, nil
}

// FinalizeGame materializes the game ranking. Called once the game's
// finished flag is committed, so the answer set is complete.
func (a *Aggregator) FinalizeGame(ctx context.Context, gameID string) error {
	entries, err := a.ComputeGameRanking(ctx, gameID)
	if err != nil {
		return err
	}
	return a.store.SaveRanking(ctx, gameID, entries)
}

// ComputeTournamentRanking sums each participant's points across every
// finished game of the tournament. A participant who played fewer games is
// not normalized: raw sum only. Rank is the 1-based sort position.
func (a *Aggregator) ComputeTournamentRanking(ctx context.Context, tournamentID string) ([]domain.TournamentEntry, error) {
	rows, err := a.store.ListTournamentRankings(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int)
	for _, row := range rows {
		totals[row.ParticipantID] += row.Points
	}

	entries := make([]domain.TournamentEntry, 0, len(totals))
	for id, pts := range totals {
		entries = append(entries, domain.TournamentEntry{
			TournamentID:  tournamentID,
			ParticipantID: id,
			Points:        pts,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
