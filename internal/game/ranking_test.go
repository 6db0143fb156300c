package game_test

import (
	"context"
	"testing"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/game"
)

func TestComputeGameRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rankings := game.NewAggregator(f.store)

	for _, id := range []string{"alice", "bob", "carol"} {
		if err := f.store.JoinGame(ctx, testGameID, id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	// Alice answers both questions correctly, Bob one, Carol none.
	submissions := []struct {
		participant string
		question    string
		answer      string
	}{
		{"alice", "q1", "4"},
		{"alice", "q2", "Paris"},
		{"bob", "q1", "4"},
		{"bob", "q2", "Lyon"},
	}
	for _, s := range submissions {
		if _, err := f.store.SubmitAnswer(ctx, testGameID, s.participant, s.question, s.answer); err != nil {
			t.Fatalf("submit %s/%s: %v", s.participant, s.question, err)
		}
	}

	entries, err := rankings.ComputeGameRanking(ctx, testGameID)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	want := []struct {
		participant string
		points      int
		rank        int
	}{
		{"alice", 2, 1},
		{"bob", 1, 2},
		{"carol", 0, 3},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		e := entries[i]
		if e.ParticipantID != w.participant || e.Points != w.points || e.Rank != w.rank {
			t.Fatalf("entry %d: expected %+v, got %+v", i, w, e)
		}
	}
}

func TestComputeGameRankingTieBreaksOnJoinTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rankings := game.NewAggregator(f.store)

	// Bob joins first, then Alice; both finish on the same score.
	for _, id := range []string{"bob", "alice"} {
		if err := f.store.JoinGame(ctx, testGameID, id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	for _, id := range []string{"alice", "bob"} {
		if _, err := f.store.SubmitAnswer(ctx, testGameID, id, "q1", "4"); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}

	entries, err := rankings.ComputeGameRanking(ctx, testGameID)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if entries[0].ParticipantID != "bob" || entries[1].ParticipantID != "alice" {
		t.Fatalf("expected earliest joiner first on a tie, got %+v", entries)
	}
	// Dense ranking: both carry rank 1.
	if entries[0].Rank != 1 || entries[1].Rank != 1 {
		t.Fatalf("expected shared rank 1, got %+v", entries)
	}
}

func TestComputeTournamentRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rankings := game.NewAggregator(f.store)

	// Two finished games in tournament t-1, one game outside it.
	games := []domain.Game{
		{ID: "g1", HostID: testHostID, QuizID: testQuizID, TournamentID: "t-1", IsFinished: true},
		{ID: "g2", HostID: testHostID, QuizID: testQuizID, TournamentID: "t-1", IsFinished: true},
		{ID: "g3", HostID: testHostID, QuizID: testQuizID, TournamentID: "t-2", IsFinished: true},
	}
	for _, g := range games {
		f.store.AddGame(g)
	}
	saved := map[string][]domain.RankingEntry{
		"g1": {
			{GameID: "g1", ParticipantID: "alice", Points: 5, Rank: 1},
			{GameID: "g1", ParticipantID: "bob", Points: 2, Rank: 2},
		},
		"g2": {
			{GameID: "g2", ParticipantID: "alice", Points: 3, Rank: 1},
		},
		"g3": {
			{GameID: "g3", ParticipantID: "alice", Points: 9, Rank: 1},
		},
	}
	for gameID, entries := range saved {
		if err := f.store.SaveRanking(ctx, gameID, entries); err != nil {
			t.Fatalf("save ranking %s: %v", gameID, err)
		}
	}

	entries, err := rankings.ComputeTournamentRanking(ctx, "t-1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].ParticipantID != "alice" || entries[0].Points != 8 || entries[0].Rank != 1 {
		t.Fatalf("expected alice on 8 points at rank 1, got %+v", entries[0])
	}
	if entries[1].ParticipantID != "bob" || entries[1].Points != 2 || entries[1].Rank != 2 {
		t.Fatalf("expected bob on 2 points at rank 2, got %+v", entries[1])
	}
}

func TestUnfinishedGamesExcludedFromTournament(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rankings := game.NewAggregator(f.store)

	f.store.AddGame(domain.Game{ID: "g1", HostID: testHostID, QuizID: testQuizID, TournamentID: "t-1", IsFinished: true})
	f.store.AddGame(domain.Game{ID: "g2", HostID: testHostID, QuizID: testQuizID, TournamentID: "t-1", IsFinished: false})
	if err := f.store.SaveRanking(ctx, "g1", []domain.RankingEntry{
		{GameID: "g1", ParticipantID: "alice", Points: 4, Rank: 1},
	}); err != nil {
		t.Fatalf("save ranking: %v", err)
	}
	if err := f.store.SaveRanking(ctx, "g2", []domain.RankingEntry{
		{GameID: "g2", ParticipantID: "alice", Points: 7, Rank: 1},
	}); err != nil {
		t.Fatalf("save ranking: %v", err)
	}

	entries, err := rankings.ComputeTournamentRanking(ctx, "t-1")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(entries) != 1 || entries[0].Points != 4 {
		t.Fatalf("expected only the finished game to count, got %+v", entries)
	}
}
