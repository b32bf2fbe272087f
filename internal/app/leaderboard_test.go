package app

import (
	"testing"

	"quizroom-service/internal/domain"
)

func TestBuildLeaderboardOrdering(t *testing.T) {
	players := map[string]domain.Player{
		"p1": {ID: "p1", Name: "Ada", Role: domain.RolePlayer, Score: 300, AvgResponseMs: 4000},
		"p2": {ID: "p2", Name: "Bo", Role: domain.RolePlayer, Score: 500, AvgResponseMs: 2000},
		"p3": {ID: "p3", Name: "Cy", Role: domain.RoleHost, Score: 500, AvgResponseMs: 1000},
		"p4": {ID: "p4", Name: "Dee", Role: domain.RoleSpectator, Score: 9999},
	}

	board := BuildLeaderboard(players, nil)
	if len(board) != 3 {
		t.Fatalf("spectators must not rank, got %d entries", len(board))
	}
	// Same score: faster average response wins.
	if board[0].PlayerID != "p3" || board[1].PlayerID != "p2" || board[2].PlayerID != "p1" {
		t.Fatalf("order %s %s %s", board[0].PlayerID, board[1].PlayerID, board[2].PlayerID)
	}
	for i, e := range board {
		if e.Rank != i+1 {
			t.Fatalf("rank at %d = %d", i, e.Rank)
		}
	}
}

func TestBuildLeaderboardIsTotalOrder(t *testing.T) {
	// Identical stats everywhere: player id breaks the tie, so repeated
	// builds agree.
	players := map[string]domain.Player{
		"b": {ID: "b", Role: domain.RolePlayer, Score: 100, AvgResponseMs: 1000},
		"a": {ID: "a", Role: domain.RolePlayer, Score: 100, AvgResponseMs: 1000},
		"c": {ID: "c", Role: domain.RolePlayer, Score: 100, AvgResponseMs: 1000},
	}
	first := BuildLeaderboard(players, nil)
	for i := 0; i < 10; i++ {
		again := BuildLeaderboard(players, nil)
		for j := range first {
			if first[j].PlayerID != again[j].PlayerID {
				t.Fatalf("unstable order at %d: %s vs %s", j, first[j].PlayerID, again[j].PlayerID)
			}
		}
	}
	if first[0].PlayerID != "a" {
		t.Fatalf("tie should break on id, got %s first", first[0].PlayerID)
	}
}

func TestBuildLeaderboardDeltas(t *testing.T) {
	previous := []domain.LeaderboardEntry{
		{Rank: 1, PlayerID: "p1", Score: 200},
		{Rank: 2, PlayerID: "p2", Score: 150},
	}
	players := map[string]domain.Player{
		"p1": {ID: "p1", Role: domain.RolePlayer, Score: 210},
		"p2": {ID: "p2", Role: domain.RolePlayer, Score: 400},
		"p3": {ID: "p3", Role: domain.RolePlayer, Score: 50}, // new, no deltas
	}

	board := BuildLeaderboard(players, previous)
	if board[0].PlayerID != "p2" {
		t.Fatalf("p2 should lead")
	}
	if board[0].RankChange != 1 || board[0].ScoreChange != 250 {
		t.Fatalf("p2 deltas: rank %+d score %+d", board[0].RankChange, board[0].ScoreChange)
	}
	if board[1].PlayerID != "p1" || board[1].RankChange != -1 || board[1].ScoreChange != 10 {
		t.Fatalf("p1 deltas: rank %+d score %+d", board[1].RankChange, board[1].ScoreChange)
	}
	if board[2].PlayerID != "p3" || board[2].RankChange != 0 || board[2].ScoreChange != 0 {
		t.Fatalf("new player deltas should be zero: %+v", board[2])
	}
}

func TestLeaderChanged(t *testing.T) {
	prev := []domain.LeaderboardEntry{{PlayerID: "p1"}, {PlayerID: "p2"}}
	next := []domain.LeaderboardEntry{{PlayerID: "p2"}, {PlayerID: "p1"}}
	if !LeaderChanged(prev, next) {
		t.Fatalf("lead swap not detected")
	}
	if LeaderChanged(prev, prev) {
		t.Fatalf("no swap reported as change")
	}
	if LeaderChanged(nil, next) {
		t.Fatalf("empty previous board is not a change")
	}
}
