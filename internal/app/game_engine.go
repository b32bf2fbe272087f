package app

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/store"
)

// QuizRepository supplies immutable quiz content.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

const (
	startCountdownSeconds = 3
	timeFreezeSeconds     = 5
)

// GameEngine owns every game state transition. Clients express intent; the
// engine validates, mutates the store, and emits events. All mutations for
// one room run under that room's lock, so transitions are serialized and a
// late timer expiry can never race a skip or a final answer.
type GameEngine struct {
	store   store.Store
	quizzes QuizRepository
	timers  *TimerRegistry
	now     func() time.Time
	freeze  time.Duration
	rnd     *rand.Rand

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGameEngine(st store.Store, quizzes QuizRepository, timers *TimerRegistry) *GameEngine {
	return &GameEngine{
		store:   st,
		quizzes: quizzes,
		timers:  timers,
		now:     time.Now,
		freeze:  timeFreezeSeconds * time.Second,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (e *GameEngine) roomLock(roomID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[roomID] = l
	}
	return l
}

func (e *GameEngine) nowMs() int64 { return e.now().UnixMilli() }

func (e *GameEngine) loadGame(ctx context.Context, roomID string) (domain.GameState, error) {
	var state domain.GameState
	err := e.store.Get(ctx, store.GamePath(roomID), &state)
	if errors.Is(err, store.ErrPathNotFound) {
		return state, domain.ErrGameNotFound
	}
	return state, err
}

// InitializeGame creates the lobby-state game record for a fresh room. It is
// the only full-document write; later mutations target sub-paths so the
// event log under the same record survives.
func (e *GameEngine) InitializeGame(ctx context.Context, room domain.Room, host domain.Player) error {
	state := domain.GameState{
		RoomID:               room.ID,
		GameID:               newID(),
		Status:               domain.GameLobby,
		QuizID:               room.QuizID,
		CurrentQuestionIndex: -1,
		Players:              map[string]domain.Player{host.ID: host},
		HostID:               host.ID,
		Settings:             room.Settings,
	}
	return e.store.Set(ctx, store.GamePath(room.ID), state)
}

// AddPlayer registers a joining player with the game. Late joins are allowed
// only when the room settings permit them.
func (e *GameEngine) AddPlayer(ctx context.Context, roomID string, player domain.Player) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.Status == domain.GameFinished {
		return domain.ErrGameInProgress
	}
	if state.Status != domain.GameLobby && !state.Settings.AllowLateJoin {
		return domain.ErrGameInProgress
	}
	if state.Settings.PowerUpsEnabled && player.Role != domain.RoleSpectator {
		player.PowerUps = defaultPowerUps()
	}
	if state.Settings.GameMode == domain.ModeFree && state.Status == domain.GameAnswering && player.Role != domain.RoleSpectator {
		now := e.nowMs()
		player.FreeMode = &domain.FreeModeProgress{
			TimeRemaining:     state.Settings.TotalQuizTime,
			StartedAt:         now,
			QuestionStartedAt: now,
		}
	}
	if err := e.store.Set(ctx, store.GamePlayerPath(roomID, player.ID), player); err != nil {
		return err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type:       domain.EventPlayerJoined,
		PlayerID:   player.ID,
		PlayerName: player.Name,
	})
	return nil
}

// RemovePlayer takes a player out of the game. In the lobby the record is
// deleted outright; mid-game it is kept for the final standings and only
// marked offline. A departing host hands the role to the lexicographically
// first online player so every client elects the same successor.
func (e *GameEngine) RemovePlayer(ctx context.Context, roomID, playerID string) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	p, ok := state.Players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}

	if state.Status == domain.GameLobby {
		if err := e.store.Delete(ctx, store.GamePlayerPath(roomID, playerID)); err != nil {
			return err
		}
		delete(state.Players, playerID)
	} else {
		p.IsOnline = false
		p.LastActiveAt = e.nowMs()
		if err := e.store.Set(ctx, store.GamePlayerPath(roomID, playerID), p); err != nil {
			return err
		}
		state.Players[playerID] = p
	}

	e.emit(ctx, roomID, domain.GameEvent{
		Type:       domain.EventPlayerLeft,
		PlayerID:   playerID,
		PlayerName: p.Name,
	})

	if state.HostID == playerID {
		if err := e.transferHost(ctx, roomID, &state); err != nil {
			return err
		}
	}

	// The leaver may have been the last unanswered player.
	if state.Status == domain.GameAnswering && state.Settings.GameMode == domain.ModeSynced {
		if allEligibleAnswered(state) {
			return e.endQuestionLocked(ctx, roomID, state.CurrentQuestionIndex)
		}
	}
	return nil
}

func (e *GameEngine) transferHost(ctx context.Context, roomID string, state *domain.GameState) error {
	var ids []string
	for id, p := range state.Players {
		if id != state.HostID && p.IsOnline && p.Role != domain.RoleSpectator {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	next := ids[0]

	np := state.Players[next]
	np.Role = domain.RoleHost
	state.Players[next] = np
	state.HostID = next

	err := e.store.Update(ctx, map[string]any{
		store.GamePath(roomID) + "/hostId":       next,
		store.GamePlayerPath(roomID, next):       np,
		store.RoomPath(roomID) + "/hostId":       next,
	})
	if err != nil {
		return err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type:       domain.EventHostChanged,
		PlayerID:   next,
		PlayerName: np.Name,
	})
	return nil
}

// KickPlayer removes a player at the host's request. The kicked event is
// emitted before removal so clients can tell a kick from a plain leave.
func (e *GameEngine) KickPlayer(ctx context.Context, roomID, requesterID, targetID string) error {
	l := e.roomLock(roomID)
	l.Lock()
	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		l.Unlock()
		return err
	}
	if state.HostID != requesterID {
		l.Unlock()
		return domain.ErrNotHost
	}
	if requesterID == targetID {
		l.Unlock()
		return domain.ErrPlayerNotFound
	}
	p, ok := state.Players[targetID]
	if !ok {
		l.Unlock()
		return domain.ErrPlayerNotFound
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type:       domain.EventPlayerKicked,
		PlayerID:   targetID,
		PlayerName: p.Name,
	})
	l.Unlock()
	return e.RemovePlayer(ctx, roomID, targetID)
}

// SetReady flips a player's lobby ready flag.
func (e *GameEngine) SetReady(ctx context.Context, roomID, playerID string, ready bool) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	p, ok := state.Players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	err = e.store.Update(ctx, map[string]any{
		store.GamePlayerPath(roomID, playerID) + "/isReady":      ready,
		store.GamePlayerPath(roomID, playerID) + "/lastActiveAt": e.nowMs(),
	})
	if err != nil {
		return err
	}
	if ready {
		e.emit(ctx, roomID, domain.GameEvent{
			Type:       domain.EventPlayerReady,
			PlayerID:   playerID,
			PlayerName: p.Name,
		})
	}
	return nil
}

// SetOnline records a presence change. Going offline during a synced
// question re-checks early advance, since the remaining answer pool shrank.
func (e *GameEngine) SetOnline(ctx context.Context, roomID, playerID string, online bool) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	p, ok := state.Players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.IsOnline = online
	p.LastActiveAt = e.nowMs()
	state.Players[playerID] = p
	err = e.store.Update(ctx, map[string]any{
		store.GamePlayerPath(roomID, playerID) + "/isOnline":     online,
		store.GamePlayerPath(roomID, playerID) + "/lastActiveAt": p.LastActiveAt,
	})
	if err != nil {
		return err
	}
	if !online && state.Status == domain.GameAnswering && state.Settings.GameMode == domain.ModeSynced {
		if allEligibleAnswered(state) {
			return e.endQuestionLocked(ctx, roomID, state.CurrentQuestionIndex)
		}
	}
	return nil
}

// StartGame moves the game from lobby into the start countdown. Host only.
// Question content is snapshotted into the game record here, so mid-game
// quiz edits never affect a running game.
func (e *GameEngine) StartGame(ctx context.Context, roomID, requesterID string) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.HostID != requesterID {
		return domain.ErrNotHost
	}
	if state.Status != domain.GameLobby {
		return domain.ErrGameInProgress
	}

	quiz, err := e.quizzes.GetQuiz(ctx, state.QuizID)
	if err != nil {
		return err
	}
	if len(quiz.Questions) == 0 {
		return domain.ErrQuizNotFound
	}

	now := e.nowMs()
	err = e.store.Update(ctx, map[string]any{
		store.GamePath(roomID) + "/status":         domain.GameStarting,
		store.GamePath(roomID) + "/quizTitle":      quiz.Title,
		store.GamePath(roomID) + "/totalQuestions": len(quiz.Questions),
		store.GamePath(roomID) + "/questions":      quiz.Questions,
		store.GamePath(roomID) + "/startedAt":      now,
		store.RoomPath(roomID) + "/status":         domain.RoomPlaying,
		store.RoomPath(roomID) + "/startedAt":      now,
	})
	if err != nil {
		return err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type: domain.EventGameStarted,
		Data: map[string]any{"totalQuestions": len(quiz.Questions), "mode": state.Settings.GameMode},
	})

	mode := state.Settings.GameMode
	e.timers.Start(roomID, startCountdownSeconds, nil, func() {
		ctx := context.Background()
		l.Lock()
		defer l.Unlock()
		var err error
		if mode == domain.ModeFree {
			err = e.beginFreeModeLocked(ctx, roomID)
		} else {
			err = e.startQuestionLocked(ctx, roomID, 0)
		}
		if err != nil {
			log.Printf("game %s: start countdown: %v", roomID, err)
		}
	})
	return nil
}

// startQuestionLocked activates question index: resets per-player answer
// flags, writes the fresh question state, and arms the countdown. Caller
// holds the room lock.
func (e *GameEngine) startQuestionLocked(ctx context.Context, roomID string, index int) error {
	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.Status == domain.GameFinished {
		return nil
	}
	if index >= len(state.Questions) {
		return e.finishGameLocked(ctx, roomID)
	}

	q := state.Questions[index]
	timeLimit := q.TimeLimit
	if timeLimit <= 0 {
		timeLimit = state.Settings.TimePerQuestion
	}

	qs := domain.QuestionState{
		Index:         index,
		Question:      q,
		StartedAt:     e.nowMs(),
		TimeLimit:     timeLimit,
		TimeRemaining: timeLimit,
	}

	updates := map[string]any{
		store.GamePath(roomID) + "/status":               domain.GameAnswering,
		store.GamePath(roomID) + "/currentQuestionIndex": index,
		store.CurrentQuestionPath(roomID):                qs,
	}
	for id := range state.Players {
		updates[store.GamePlayerPath(roomID, id)+"/hasAnswered"] = false
	}
	if err := e.store.Update(ctx, updates); err != nil {
		return err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type: domain.EventQuestionStart,
		Data: map[string]any{"index": index, "timeLimit": timeLimit},
	})

	e.timers.Start(roomID, timeLimit,
		func(remaining int) {
			err := e.store.Set(context.Background(), store.CurrentQuestionPath(roomID)+"/timeRemaining", remaining)
			if err != nil {
				log.Printf("game %s: tick write: %v", roomID, err)
			}
		},
		func() {
			if err := e.EndQuestion(context.Background(), roomID, index); err != nil {
				log.Printf("game %s: question expiry: %v", roomID, err)
			}
		})
	return nil
}

// SubmitAnswer grades and records one player's answer to the active synced
// question. The first write wins; a second submission for the same question
// is rejected.
func (e *GameEngine) SubmitAnswer(ctx context.Context, roomID, playerID string, answer domain.Answer) (domain.PlayerAnswer, error) {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	var zero domain.PlayerAnswer
	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return zero, err
	}
	if state.Settings.GameMode == domain.ModeFree {
		return e.submitFreeModeLocked(ctx, roomID, playerID, state, answer)
	}
	if state.Status != domain.GameAnswering || state.CurrentQuestion == nil {
		return zero, domain.ErrNoActiveQuestion
	}
	qs := state.CurrentQuestion
	p, ok := state.Players[playerID]
	if !ok {
		return zero, domain.ErrPlayerNotFound
	}
	if p.Role == domain.RoleSpectator {
		return zero, domain.ErrSpectator
	}
	if p.HasAnswered {
		return zero, domain.ErrAlreadyAnswered
	}
	if _, dup := qs.Answers[playerID]; dup {
		return zero, domain.ErrAlreadyAnswered
	}

	now := e.nowMs()
	responseMs := int(now - qs.StartedAt)
	limitMs := qs.TimeLimit * 1000
	if responseMs < 0 {
		responseMs = 0
	}
	if limitMs > 0 && responseMs > limitMs {
		responseMs = limitMs
	}

	correct := CheckAnswer(qs.Question, answer)
	points := CalculatePoints(qs.Question, correct, responseMs, limitMs, p.Streak, p.ActivePowerUps, state.Settings)

	pa := e.applyAnswer(&p, qs.Index, answer, correct, points, responseMs, now, state.Settings)
	state.Players[playerID] = p
	if qs.Answers == nil {
		qs.Answers = make(map[string]domain.PlayerAnswer)
	}
	qs.Answers[playerID] = pa
	qs.AnswerCount = len(qs.Answers)

	key := AnswerKey(qs.Question, answer)
	if qs.Distribution == nil {
		qs.Distribution = make(map[string][]string)
	}
	qs.Distribution[key] = append(qs.Distribution[key], playerID)

	updates := map[string]any{
		store.PlayerAnswerPath(roomID, playerID):            pa,
		store.GamePlayerPath(roomID, playerID):              p,
		store.CurrentQuestionPath(roomID) + "/answerCount":  qs.AnswerCount,
		store.DistributionPath(roomID, key):                 qs.Distribution[key],
	}
	if err := e.store.Update(ctx, updates); err != nil {
		return zero, err
	}

	e.emit(ctx, roomID, domain.GameEvent{
		Type:       domain.EventPlayerAnswered,
		PlayerID:   playerID,
		PlayerName: p.Name,
		Data:       map[string]any{"answerCount": qs.AnswerCount},
	})
	if pa.StreakBonus > 0 {
		e.emit(ctx, roomID, domain.GameEvent{
			Type:       domain.EventStreakAchieved,
			PlayerID:   playerID,
			PlayerName: p.Name,
			Data:       map[string]any{"streak": p.Streak, "bonus": pa.StreakBonus},
		})
	}

	if allEligibleAnswered(state) {
		if err := e.endQuestionLocked(ctx, roomID, qs.Index); err != nil {
			return zero, err
		}
	}
	return pa, nil
}

// applyAnswer folds one graded answer into the player's running stats.
func (e *GameEngine) applyAnswer(p *domain.Player, index int, answer domain.Answer, correct bool, points, responseMs int, now int64, settings domain.RoomSettings) domain.PlayerAnswer {
	newStreak := 0
	if correct {
		newStreak = p.Streak + 1
	}
	bonus := 0
	if correct && settings.StreakEnabled {
		bonus = StreakBonus(newStreak)
	}

	pa := domain.PlayerAnswer{
		PlayerID:      p.ID,
		QuestionIndex: index,
		Answer:        answer,
		AnsweredAt:    now,
		ResponseMs:    responseMs,
		Correct:       correct,
		Points:        points,
		StreakBonus:   bonus,
		PowerUpsUsed:  p.ActivePowerUps,
	}

	p.Score += points + bonus
	p.TotalAnswers++
	if correct {
		p.CorrectAnswers++
	}
	p.Streak = newStreak
	if newStreak > p.MaxStreak {
		p.MaxStreak = newStreak
	}
	p.AvgResponseMs = ((p.AvgResponseMs * (p.TotalAnswers - 1)) + responseMs) / p.TotalAnswers
	p.HasAnswered = true
	p.ActivePowerUps = nil
	p.LastActiveAt = now
	return pa
}

// allEligibleAnswered reports whether every online non-spectator has an
// answer recorded for the current question.
func allEligibleAnswered(state domain.GameState) bool {
	qs := state.CurrentQuestion
	if qs == nil {
		return false
	}
	eligible := 0
	for id, p := range state.Players {
		if !p.IsOnline || p.Role == domain.RoleSpectator {
			continue
		}
		eligible++
		if _, ok := qs.Answers[id]; !ok {
			return false
		}
	}
	return eligible > 0
}

// EndQuestion closes question index if it is still the active one. Timer
// expiry, early advance, and host skip all funnel through here, so the
// transition happens exactly once no matter which trigger fires first.
func (e *GameEngine) EndQuestion(ctx context.Context, roomID string, index int) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()
	return e.endQuestionLocked(ctx, roomID, index)
}

func (e *GameEngine) endQuestionLocked(ctx context.Context, roomID string, index int) error {
	e.timers.Cancel(roomID)

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.Status != domain.GameAnswering || state.CurrentQuestionIndex != index || state.CurrentQuestion == nil {
		return nil
	}
	qs := state.CurrentQuestion

	correctCount := 0
	for _, pa := range qs.Answers {
		if pa.Correct {
			correctCount++
		}
	}

	err = e.store.Update(ctx, map[string]any{
		store.GamePath(roomID) + "/status":                  domain.GameReviewing,
		store.CurrentQuestionPath(roomID) + "/correctCount":  correctCount,
		store.CurrentQuestionPath(roomID) + "/timeRemaining": 0,
	})
	if err != nil {
		return err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type: domain.EventQuestionEnded,
		Data: map[string]any{
			"index":        index,
			"answerCount":  len(qs.Answers),
			"correctCount": correctCount,
		},
	})

	review := state.Settings.ReviewDuration
	if review <= 0 {
		return e.afterReviewLocked(ctx, roomID, index)
	}
	e.startReviewTimer(roomID, index, review)
	return nil
}

func (e *GameEngine) startReviewTimer(roomID string, index, seconds int) {
	e.timers.Start(roomID, seconds, nil, func() {
		ctx := context.Background()
		l := e.roomLock(roomID)
		l.Lock()
		defer l.Unlock()
		if err := e.afterReviewLocked(ctx, roomID, index); err != nil {
			log.Printf("game %s: after review: %v", roomID, err)
		}
	})
}

// afterReviewLocked rebuilds the leaderboard once the review window ends,
// then either holds on the leaderboard screen or advances directly.
func (e *GameEngine) afterReviewLocked(ctx context.Context, roomID string, index int) error {
	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.Status != domain.GameReviewing || state.CurrentQuestionIndex != index {
		return nil
	}

	board := BuildLeaderboard(state.Players, state.Leaderboard)
	if LeaderChanged(state.Leaderboard, board) {
		e.emit(ctx, roomID, domain.GameEvent{
			Type:       domain.EventLeaderChanged,
			PlayerID:   board[0].PlayerID,
			PlayerName: board[0].PlayerName,
		})
	}

	last := index >= state.TotalQuestions-1
	if last {
		return e.finishGameLocked(ctx, roomID)
	}

	if !state.Settings.ShowLeaderboard {
		if err := e.store.Set(ctx, store.LeaderboardPath(roomID), board); err != nil {
			return err
		}
		return e.startQuestionLocked(ctx, roomID, index+1)
	}

	err = e.store.Update(ctx, map[string]any{
		store.GamePath(roomID) + "/status": domain.GameLeaderboard,
		store.LeaderboardPath(roomID):      board,
	})
	if err != nil {
		return err
	}
	hold := state.Settings.LeaderboardDuration
	if hold <= 0 {
		return e.startQuestionLocked(ctx, roomID, index+1)
	}
	e.startLeaderboardTimer(roomID, index, hold)
	return nil
}

func (e *GameEngine) startLeaderboardTimer(roomID string, index, seconds int) {
	e.timers.Start(roomID, seconds, nil, func() {
		ctx := context.Background()
		l := e.roomLock(roomID)
		l.Lock()
		defer l.Unlock()
		st, err := e.loadGame(ctx, roomID)
		if err != nil {
			log.Printf("game %s: advance: %v", roomID, err)
			return
		}
		if st.Status != domain.GameLeaderboard || st.CurrentQuestionIndex != index {
			return
		}
		if err := e.startQuestionLocked(ctx, roomID, index+1); err != nil {
			log.Printf("game %s: advance: %v", roomID, err)
		}
	})
}

// SkipQuestion ends the active question immediately. Host only.
func (e *GameEngine) SkipQuestion(ctx context.Context, roomID, requesterID string) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.HostID != requesterID {
		return domain.ErrNotHost
	}
	if state.Status != domain.GameAnswering {
		return domain.ErrNoActiveQuestion
	}
	return e.endQuestionLocked(ctx, roomID, state.CurrentQuestionIndex)
}

// PauseGame freezes the game where it stands, saving the exact seconds left
// on whichever countdown was running so resume continues from the same
// point. Works during a question and during the review and leaderboard
// holds. Host only.
func (e *GameEngine) PauseGame(ctx context.Context, roomID, requesterID string) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.HostID != requesterID {
		return domain.ErrNotHost
	}
	switch state.Status {
	case domain.GameAnswering, domain.GameReviewing, domain.GameLeaderboard:
	default:
		return domain.ErrNoActiveQuestion
	}

	remaining, ok := e.timers.Pause(roomID)
	updates := map[string]any{
		store.GamePath(roomID) + "/status":          domain.GamePaused,
		store.GamePath(roomID) + "/resumeStatus":    state.Status,
		store.GamePath(roomID) + "/pausedAt":        e.nowMs(),
		store.GamePath(roomID) + "/pausedRemaining": remaining,
	}
	if state.Status == domain.GameAnswering && state.CurrentQuestion != nil {
		if !ok {
			remaining = state.CurrentQuestion.TimeRemaining
			updates[store.GamePath(roomID)+"/pausedRemaining"] = remaining
		}
		updates[store.CurrentQuestionPath(roomID)+"/isPaused"] = true
		updates[store.CurrentQuestionPath(roomID)+"/timeRemaining"] = remaining
	}
	if err := e.store.Update(ctx, updates); err != nil {
		return err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type: domain.EventGamePaused,
		Data: map[string]any{"remaining": remaining},
	})
	return nil
}

// ResumeGame returns to the state saved at pause and restarts its countdown
// from the saved remaining time. Host only.
func (e *GameEngine) ResumeGame(ctx context.Context, roomID, requesterID string) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.HostID != requesterID {
		return domain.ErrNotHost
	}
	if state.Status != domain.GamePaused {
		return domain.ErrNoActiveQuestion
	}

	resume := state.ResumeStatus
	if resume == "" {
		resume = domain.GameAnswering
	}
	remaining := state.PausedRemaining
	index := state.CurrentQuestionIndex

	updates := map[string]any{
		store.GamePath(roomID) + "/status":          resume,
		store.GamePath(roomID) + "/resumeStatus":    nil,
		store.GamePath(roomID) + "/pausedAt":        nil,
		store.GamePath(roomID) + "/pausedRemaining": nil,
	}
	if resume == domain.GameAnswering {
		if state.CurrentQuestion == nil {
			return domain.ErrNoActiveQuestion
		}
		// Shift the question clock forward by the pause so the time spent
		// paused is never billed to anyone's response time.
		elapsedMs := int64(state.CurrentQuestion.TimeLimit-remaining) * 1000
		updates[store.CurrentQuestionPath(roomID)+"/isPaused"] = false
		updates[store.CurrentQuestionPath(roomID)+"/timeRemaining"] = remaining
		updates[store.CurrentQuestionPath(roomID)+"/startedAt"] = e.nowMs() - elapsedMs
	}
	if err := e.store.Update(ctx, updates); err != nil {
		return err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type: domain.EventGameResumed,
		Data: map[string]any{"remaining": remaining},
	})

	switch resume {
	case domain.GameReviewing:
		if remaining <= 0 {
			return e.afterReviewLocked(ctx, roomID, index)
		}
		e.startReviewTimer(roomID, index, remaining)
	case domain.GameLeaderboard:
		if remaining <= 0 {
			return e.startQuestionLocked(ctx, roomID, index+1)
		}
		e.startLeaderboardTimer(roomID, index, remaining)
	default:
		if remaining <= 0 {
			return e.endQuestionLocked(ctx, roomID, index)
		}
		e.startQuestionTimer(roomID, index, remaining)
	}
	return nil
}

func (e *GameEngine) startQuestionTimer(roomID string, index, seconds int) {
	e.timers.Start(roomID, seconds,
		func(remaining int) {
			err := e.store.Set(context.Background(), store.CurrentQuestionPath(roomID)+"/timeRemaining", remaining)
			if err != nil {
				log.Printf("game %s: tick write: %v", roomID, err)
			}
		},
		func() {
			if err := e.EndQuestion(context.Background(), roomID, index); err != nil {
				log.Printf("game %s: question expiry: %v", roomID, err)
			}
		})
}

// EndGame terminates the game immediately. Host only.
func (e *GameEngine) EndGame(ctx context.Context, roomID, requesterID string) error {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.HostID != requesterID {
		return domain.ErrNotHost
	}
	if state.Status == domain.GameFinished {
		return nil
	}
	return e.finishGameLocked(ctx, roomID)
}

func (e *GameEngine) finishGameLocked(ctx context.Context, roomID string) error {
	e.timers.Cancel(roomID)

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return err
	}
	if state.Status == domain.GameFinished {
		return nil
	}

	board := BuildLeaderboard(state.Players, state.Leaderboard)
	now := e.nowMs()
	err = e.store.Update(ctx, map[string]any{
		store.GamePath(roomID) + "/status":     domain.GameFinished,
		store.GamePath(roomID) + "/finishedAt": now,
		store.LeaderboardPath(roomID):          board,
		store.RoomPath(roomID) + "/status":     domain.RoomFinished,
		store.RoomPath(roomID) + "/finishedAt": now,
	})
	if err != nil {
		return err
	}

	ev := domain.GameEvent{Type: domain.EventGameFinished}
	if len(board) > 0 {
		ev.PlayerID = board[0].PlayerID
		ev.PlayerName = board[0].PlayerName
		ev.Data = map[string]any{"winnerScore": board[0].Score}
	}
	e.emit(ctx, roomID, ev)
	return nil
}

// UsePowerUp activates one of the player's single-use power-ups against the
// active question. The result is returned to the activating player only;
// other players just see the powerup_used event.
func (e *GameEngine) UsePowerUp(ctx context.Context, roomID, playerID string, typ domain.PowerUpType) (domain.PowerUpResult, error) {
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	var zero domain.PowerUpResult
	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return zero, err
	}
	if !state.Settings.PowerUpsEnabled {
		return zero, domain.ErrPowerUpUnavailable
	}
	if state.Status != domain.GameAnswering || state.CurrentQuestion == nil {
		return zero, domain.ErrNoActiveQuestion
	}
	p, ok := state.Players[playerID]
	if !ok {
		return zero, domain.ErrPlayerNotFound
	}
	if p.Role == domain.RoleSpectator {
		return zero, domain.ErrSpectator
	}
	if p.HasAnswered {
		return zero, domain.ErrAlreadyAnswered
	}
	st, ok := p.PowerUps[typ]
	if !ok || st.Used {
		return zero, domain.ErrPowerUpUnavailable
	}

	index := state.CurrentQuestionIndex
	result := domain.PowerUpResult{Type: typ}

	switch typ {
	case domain.PowerUpDoublePoints:
		p.ActivePowerUps = append(p.ActivePowerUps, typ)

	case domain.PowerUpFiftyFifty:
		q := state.CurrentQuestion.Question
		if q.Type != domain.QuestionSingle {
			return zero, domain.ErrPowerUpUnavailable
		}
		var wrong []string
		for _, c := range q.Choices {
			if !c.Correct {
				wrong = append(wrong, c.ID)
			}
		}
		if len(wrong) < 2 {
			return zero, domain.ErrPowerUpUnavailable
		}
		e.rnd.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
		result.EliminatedChoiceIDs = wrong[:2]
		sort.Strings(result.EliminatedChoiceIDs)

	case domain.PowerUpTimeFreeze:
		remaining, paused := e.timers.Pause(roomID)
		if !paused {
			return zero, domain.ErrPowerUpUnavailable
		}
		result.FrozenSeconds = timeFreezeSeconds
		err := e.store.Set(ctx, store.CurrentQuestionPath(roomID)+"/isPaused", true)
		if err != nil {
			return zero, err
		}
		time.AfterFunc(e.freeze, func() {
			e.unfreeze(roomID, index, remaining)
		})

	default:
		return zero, domain.ErrPowerUpUnavailable
	}

	st.Used = true
	st.UsedAt = e.nowMs()
	st.UsedOnQuestion = index
	p.PowerUps[typ] = st

	if err := e.store.Set(ctx, store.GamePlayerPath(roomID, playerID), p); err != nil {
		return zero, err
	}
	e.emit(ctx, roomID, domain.GameEvent{
		Type:       domain.EventPowerUpUsed,
		PlayerID:   playerID,
		PlayerName: p.Name,
		Data:       map[string]any{"powerUp": typ},
	})
	return result, nil
}

func (e *GameEngine) unfreeze(roomID string, index, remaining int) {
	ctx := context.Background()
	l := e.roomLock(roomID)
	l.Lock()
	defer l.Unlock()

	state, err := e.loadGame(ctx, roomID)
	if err != nil {
		return
	}
	if state.Status != domain.GameAnswering || state.CurrentQuestionIndex != index || state.CurrentQuestion == nil {
		return
	}
	if !state.CurrentQuestion.IsPaused {
		return
	}
	// As with resume, the frozen seconds are excluded from response times.
	elapsedMs := int64(state.CurrentQuestion.TimeLimit-remaining) * 1000
	err = e.store.Update(ctx, map[string]any{
		store.CurrentQuestionPath(roomID) + "/isPaused":  false,
		store.CurrentQuestionPath(roomID) + "/startedAt": e.nowMs() - elapsedMs,
	})
	if err != nil {
		log.Printf("game %s: unfreeze: %v", roomID, err)
		return
	}
	if remaining <= 0 {
		if err := e.endQuestionLocked(ctx, roomID, index); err != nil {
			log.Printf("game %s: unfreeze: %v", roomID, err)
		}
		return
	}
	e.startQuestionTimer(roomID, index, remaining)
}

func defaultPowerUps() map[domain.PowerUpType]domain.PowerUpState {
	return map[domain.PowerUpType]domain.PowerUpState{
		domain.PowerUpDoublePoints: {Type: domain.PowerUpDoublePoints},
		domain.PowerUpFiftyFifty:   {Type: domain.PowerUpFiftyFifty},
		domain.PowerUpTimeFreeze:   {Type: domain.PowerUpTimeFreeze},
	}
}

func (e *GameEngine) emit(ctx context.Context, roomID string, ev domain.GameEvent) {
	ev.Timestamp = e.nowMs()
	meta := eventMeta[ev.Type]
	ev.Priority = meta.priority
	ev.ShowToast = meta.toast
	ev.Sound = meta.sound
	if _, err := e.store.Push(ctx, store.EventsPath(roomID), ev); err != nil {
		log.Printf("game %s: emit %s: %v", roomID, ev.Type, err)
	}
}

func newID() string { return uuid.NewString() }

var eventMeta = map[domain.GameEventType]struct {
	priority domain.EventPriority
	toast    bool
	sound    string
}{
	domain.EventPlayerJoined:   {domain.PriorityLow, true, ""},
	domain.EventPlayerLeft:     {domain.PriorityLow, true, ""},
	domain.EventPlayerReady:    {domain.PriorityLow, false, ""},
	domain.EventPlayerKicked:   {domain.PriorityMedium, true, ""},
	domain.EventPlayerFinished: {domain.PriorityMedium, true, "finish"},
	domain.EventGameStarted:    {domain.PriorityHigh, true, "start"},
	domain.EventQuestionStart:  {domain.PriorityHigh, false, "question"},
	domain.EventPlayerAnswered: {domain.PriorityLow, false, ""},
	domain.EventQuestionEnded:  {domain.PriorityMedium, false, ""},
	domain.EventStreakAchieved: {domain.PriorityMedium, true, "streak"},
	domain.EventPowerUpUsed:    {domain.PriorityMedium, true, "powerup"},
	domain.EventLeaderChanged:  {domain.PriorityMedium, true, "leader"},
	domain.EventGamePaused:     {domain.PriorityHigh, true, ""},
	domain.EventGameResumed:    {domain.PriorityHigh, true, ""},
	domain.EventHostChanged:    {domain.PriorityHigh, true, ""},
	domain.EventGameFinished:   {domain.PriorityHigh, true, "finish"},
}
