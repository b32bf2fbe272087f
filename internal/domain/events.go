package domain

// GameEventType identifies a discrete, append-only game notification.
type GameEventType string

const (
	EventPlayerJoined   GameEventType = "player_joined"
	EventPlayerLeft     GameEventType = "player_left"
	EventPlayerReady    GameEventType = "player_ready"
	EventPlayerKicked   GameEventType = "player_kicked"
	EventPlayerFinished GameEventType = "player_finished" // free mode: completed all questions
	EventGameStarted    GameEventType = "game_started"
	EventQuestionStart  GameEventType = "question_started"
	EventPlayerAnswered GameEventType = "player_answered"
	EventQuestionEnded  GameEventType = "question_ended"
	EventStreakAchieved GameEventType = "streak_achieved"
	EventPowerUpUsed    GameEventType = "powerup_used"
	EventLeaderChanged  GameEventType = "leader_changed"
	EventGamePaused     GameEventType = "game_paused"
	EventGameResumed    GameEventType = "game_resumed"
	EventHostChanged    GameEventType = "host_changed"
	EventGameFinished   GameEventType = "game_finished"
)

type EventPriority string

const (
	PriorityLow    EventPriority = "low"
	PriorityMedium EventPriority = "medium"
	PriorityHigh   EventPriority = "high"
)

// GameEvent is an immutable notification for the UI layer. Game logic
// writes events and never reads them back.
type GameEvent struct {
	ID         string         `json:"id"`
	Type       GameEventType  `json:"type"`
	Timestamp  int64          `json:"timestamp"`
	PlayerID   string         `json:"playerId,omitempty"`
	PlayerName string         `json:"playerName,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Priority   EventPriority  `json:"priority"`
	ShowToast  bool           `json:"showToast,omitempty"`
	Sound      string         `json:"sound,omitempty"`
}
