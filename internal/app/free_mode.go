package app

import (
	"context"
	"log"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/store"
)

// Free mode runs every player through the question list at their own pace
// against one shared total-time budget. There is no room-wide question
// timer; each player's response time is measured from when the question
// came into their view.

// beginFreeModeLocked starts the self-paced phase after the countdown:
// every eligible player gets a progress record and the shared budget timer
// is armed. Caller holds the room lock.
func (e *GameEngine) beginFreeModeLocked(ctx context.Context, roomID string) error {
	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.Status != domain.GameStarting {
		return nil
	}

	now := e.nowMs()
	budget := state.Settings.TotalQuizTime
	updates := map[string]any{
		store.GamePath(roomID) + "/status":               domain.GameAnswering,
		store.GamePath(roomID) + "/currentQuestionIndex": 0,
	}
	for id, p := range state.Players {
		if p.Role == domain.RoleSpectator {
			continue
		}
		updates[store.FreeModePath(roomID, id)] = domain.FreeModeProgress{
			TimeRemaining:     budget,
			StartedAt:         now,
			QuestionStartedAt: now,
		}
	}
	if err := e.store.Update(ctx, updates); err != nil {
		return err
	}

	// The shared budget is the only room-wide clock in free mode; when it
	// runs out the game ends for everyone, finished or not.
	e.timers.Start(roomID, budget, nil, func() {
		ctx := context.Background()
		l := e.roomLock(roomID)
		l.Lock()
		defer l.Unlock()
		if err := e.finishGameLocked(ctx, roomID); err != nil {
			log.Printf("game %s: free mode budget expiry: %v", roomID, err)
		}
	})
	return nil
}

// submitFreeModeLocked grades one self-paced answer and advances the
// player's own question cursor. When the last unfinished player completes,
// the game finishes for the room.
func (e *GameEngine) submitFreeModeLocked(ctx context.Context, roomID, playerID string, state domain.GameState, answer domain.Answer) (domain.PlayerAnswer, error) {
	var zero domain.PlayerAnswer
	if state.Status != domain.GameAnswering {
		return zero, domain.ErrNoActiveQuestion
	}
	p, ok := state.Players[playerID]
	if !ok {
		return zero, domain.ErrPlayerNotFound
	}
	if p.Role == domain.RoleSpectator {
		return zero, domain.ErrSpectator
	}
	fm := p.FreeMode
	if fm == nil {
		return zero, domain.ErrNotInFreeMode
	}
	if fm.Finished() {
		return zero, domain.ErrNoActiveQuestion
	}
	index := fm.CurrentQuestionIndex
	if index >= len(state.Questions) {
		return zero, domain.ErrNoActiveQuestion
	}

	q := state.Questions[index]
	now := e.nowMs()
	responseMs := int(now - fm.QuestionStartedAt)
	if responseMs < 0 {
		responseMs = 0
	}
	limitMs := state.Settings.TimePerQuestion * 1000
	if limitMs > 0 && responseMs > limitMs {
		responseMs = limitMs
	}

	correct := CheckAnswer(q, answer)
	points := CalculatePoints(q, correct, responseMs, limitMs, p.Streak, p.ActivePowerUps, state.Settings)
	pa := e.applyAnswer(&p, index, answer, correct, points, responseMs, now, state.Settings)

	if fm.Answers == nil {
		fm.Answers = make(map[int]domain.PlayerAnswer)
	}
	fm.Answers[index] = pa
	fm.CurrentQuestionIndex = index + 1
	fm.QuestionStartedAt = now
	elapsed := int((now - fm.StartedAt) / 1000)
	fm.TimeRemaining = state.Settings.TotalQuizTime - elapsed
	if fm.TimeRemaining < 0 {
		fm.TimeRemaining = 0
	}
	finished := fm.CurrentQuestionIndex >= len(state.Questions)
	if finished {
		fm.FinishedAt = now
	}
	p.FreeMode = fm
	state.Players[playerID] = p

	board := BuildLeaderboard(state.Players, state.Leaderboard)
	err := e.store.Update(ctx, map[string]any{
		store.GamePlayerPath(roomID, playerID): p,
		store.LeaderboardPath(roomID):          board,
	})
	if err != nil {
		return zero, err
	}

	e.emit(ctx, roomID, domain.GameEvent{
		Type:       domain.EventPlayerAnswered,
		PlayerID:   playerID,
		PlayerName: p.Name,
		Data:       map[string]any{"questionIndex": index},
	})
	if pa.StreakBonus > 0 {
		e.emit(ctx, roomID, domain.GameEvent{
			Type:       domain.EventStreakAchieved,
			PlayerID:   playerID,
			PlayerName: p.Name,
			Data:       map[string]any{"streak": p.Streak, "bonus": pa.StreakBonus},
		})
	}
	if LeaderChanged(state.Leaderboard, board) {
		e.emit(ctx, roomID, domain.GameEvent{
			Type:       domain.EventLeaderChanged,
			PlayerID:   board[0].PlayerID,
			PlayerName: board[0].PlayerName,
		})
	}
	if finished {
		e.emit(ctx, roomID, domain.GameEvent{
			Type:       domain.EventPlayerFinished,
			PlayerID:   playerID,
			PlayerName: p.Name,
			Data:       map[string]any{"score": p.Score},
		})
		if allEligibleFinished(state) {
			return pa, e.finishGameLocked(ctx, roomID)
		}
	}
	return pa, nil
}

// allEligibleFinished reports whether every online non-spectator has
// completed their free mode run.
func allEligibleFinished(state domain.GameState) bool {
	eligible := 0
	for _, p := range state.Players {
		if !p.IsOnline || p.Role == domain.RoleSpectator {
			continue
		}
		eligible++
		if !p.FreeMode.Finished() {
			return false
		}
	}
	return eligible > 0
}
