package app

import (
	"sort"

	"quizroom-service/internal/domain"
)

// BuildLeaderboard derives fresh standings from the player map. It never
// patches previous entries; the whole board is rebuilt and the previous
// board is consulted only for rank and score deltas. Spectators are not
// ranked. Ties break on lower average response time, then on player id,
// so the ordering is total and stable across rebuilds.
func BuildLeaderboard(players map[string]domain.Player, previous []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		if p.Role == domain.RoleSpectator {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:      p.ID,
			PlayerName:    p.Name,
			AvatarURL:     p.AvatarURL,
			Score:         p.Score,
			CorrectCount:  p.CorrectAnswers,
			TotalCount:    p.TotalAnswers,
			Accuracy:      p.Accuracy(),
			AvgResponseMs: p.AvgResponseMs,
			Streak:        p.Streak,
			MaxStreak:     p.MaxStreak,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.AvgResponseMs != b.AvgResponseMs {
			return a.AvgResponseMs < b.AvgResponseMs
		}
		return a.PlayerID < b.PlayerID
	})

	prevRank := make(map[string]int, len(previous))
	prevScore := make(map[string]int, len(previous))
	for _, e := range previous {
		prevRank[e.PlayerID] = e.Rank
		prevScore[e.PlayerID] = e.Score
	}

	for i := range entries {
		rank := i + 1
		entries[i].Rank = rank
		if pr, ok := prevRank[entries[i].PlayerID]; ok {
			entries[i].RankChange = pr - rank
			entries[i].ScoreChange = entries[i].Score - prevScore[entries[i].PlayerID]
		}
	}
	return entries
}

// LeaderChanged reports whether the top entry moved to a different player.
// A previously empty board never counts as a change.
func LeaderChanged(previous, next []domain.LeaderboardEntry) bool {
	if len(previous) == 0 || len(next) == 0 {
		return false
	}
	return previous[0].PlayerID != next[0].PlayerID
}
