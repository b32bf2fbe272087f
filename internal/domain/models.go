package domain

// Role is a player's part in one room. Host is a role, not a separate
// account type; exactly one player per room carries it.
type Role string

const (
	RolePlayer    Role = "player"
	RoleHost      Role = "host"
	RoleSpectator Role = "spectator"
)

// RoomStatus is the room's coarse lifecycle, visible in the directory.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomStarting RoomStatus = "starting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// GameStatus is the game state machine's current state.
type GameStatus string

const (
	GameLobby       GameStatus = "lobby"
	GameStarting    GameStatus = "starting"
	GameAnswering   GameStatus = "answering"
	GameReviewing   GameStatus = "reviewing"
	GameLeaderboard GameStatus = "leaderboard"
	GamePaused      GameStatus = "paused"
	GameFinished    GameStatus = "finished"
)

// GameMode selects lockstep or self-paced progression.
type GameMode string

const (
	ModeSynced GameMode = "synced"
	ModeFree   GameMode = "free"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type QuestionType string

const (
	QuestionSingle    QuestionType = "single"
	QuestionBoolean   QuestionType = "boolean"
	QuestionMulti     QuestionType = "multi"
	QuestionShortText QuestionType = "short_answer"
	QuestionOrdering  QuestionType = "ordering"
	QuestionMatching  QuestionType = "matching"
	QuestionFillBlank QuestionType = "fill_blank"
)

type PowerUpType string

const (
	PowerUpDoublePoints PowerUpType = "double_points"
	PowerUpFiftyFifty   PowerUpType = "fifty_fifty"
	PowerUpTimeFreeze   PowerUpType = "time_freeze"
)

// RoomSettings are host-chosen knobs, fixed once the game starts.
type RoomSettings struct {
	GameMode            GameMode `json:"gameMode"`
	TimePerQuestion     int      `json:"timePerQuestion"`     // seconds, synced mode
	TotalQuizTime       int      `json:"totalQuizTime"`       // seconds, free mode
	ReviewDuration      int      `json:"reviewDuration"`      // seconds
	LeaderboardDuration int      `json:"leaderboardDuration"` // seconds
	ShowLeaderboard     bool     `json:"showLeaderboard"`
	AllowLateJoin       bool     `json:"allowLateJoin"`
	PowerUpsEnabled     bool     `json:"powerUpsEnabled"`
	StreakEnabled       bool     `json:"streakEnabled"`
	TimeBonus           bool     `json:"timeBonus"`
}

// DefaultRoomSettings mirrors the product defaults.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		GameMode:            ModeSynced,
		TimePerQuestion:     30,
		TotalQuizTime:       300,
		ReviewDuration:      5,
		LeaderboardDuration: 3,
		ShowLeaderboard:     true,
		AllowLateJoin:       true,
		PowerUpsEnabled:     true,
		StreakEnabled:       true,
		TimeBonus:           true,
	}
}

// Room is the directory record for one joinable room.
type Room struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"` // 6-char join code, unique among active rooms
	Name         string       `json:"name"`
	HostID       string       `json:"hostId"`
	QuizID       string       `json:"quizId"`
	MaxPlayers   int          `json:"maxPlayers"`
	IsPrivate    bool         `json:"isPrivate"`
	PasswordHash string       `json:"passwordHash,omitempty"`
	PasswordSalt string       `json:"passwordSalt,omitempty"`
	Status       RoomStatus   `json:"status"`
	Settings     RoomSettings `json:"settings"`
	CreatedAt    int64        `json:"createdAt"` // unix ms
	StartedAt    int64        `json:"startedAt,omitempty"`
	FinishedAt   int64        `json:"finishedAt,omitempty"`
}

// Presence is a connection-liveness record, written by the transport layer
// and cleared by disconnect hooks. Game state never depends on it directly;
// the engine mirrors it into each player's isOnline flag.
type Presence struct {
	PlayerID string `json:"playerId"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen"`
}

// PowerUpState tracks one single-use power-up in a player's inventory.
type PowerUpState struct {
	Type           PowerUpType `json:"type"`
	Used           bool        `json:"used"`
	UsedAt         int64       `json:"usedAt,omitempty"`
	UsedOnQuestion int         `json:"usedOnQuestion,omitempty"`
}

// PowerUpResult is the immediate effect of activating a power-up, returned
// to the activating player only.
type PowerUpResult struct {
	Type                PowerUpType `json:"type"`
	EliminatedChoiceIDs []string    `json:"eliminatedChoiceIds,omitempty"`
	FrozenSeconds       int         `json:"frozenSeconds,omitempty"`
}

// FreeModeProgress is the per-player sub-machine for self-paced games.
type FreeModeProgress struct {
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	TimeRemaining        int                  `json:"timeRemaining"` // seconds left of the player's total budget
	StartedAt            int64                `json:"startedAt"`
	QuestionStartedAt    int64                `json:"questionStartedAt"` // when the current question came into view
	FinishedAt           int64                `json:"finishedAt,omitempty"`
	Answers              map[int]PlayerAnswer `json:"answers,omitempty"` // question index -> answer
}

func (p *FreeModeProgress) Finished() bool { return p != nil && p.FinishedAt > 0 }

// Player is one participant's identity and live stats within one room.
type Player struct {
	ID             string                       `json:"id"`
	Name           string                       `json:"name"`
	AvatarURL      string                       `json:"avatarUrl,omitempty"`
	Role           Role                         `json:"role"`
	IsReady        bool                         `json:"isReady"`
	IsOnline       bool                         `json:"isOnline"`
	HasAnswered    bool                         `json:"hasAnswered"`
	Score          int                          `json:"score"`
	CorrectAnswers int                          `json:"correctAnswers"`
	TotalAnswers   int                          `json:"totalAnswers"`
	Streak         int                          `json:"streak"`
	MaxStreak      int                          `json:"maxStreak"`
	AvgResponseMs  int                          `json:"avgResponseMs"`
	PowerUps       map[PowerUpType]PowerUpState `json:"powerUps,omitempty"`
	ActivePowerUps []PowerUpType                `json:"activePowerUps,omitempty"`
	JoinedAt       int64                        `json:"joinedAt"`
	LastActiveAt   int64                        `json:"lastActiveAt"`
	FreeMode       *FreeModeProgress            `json:"freeMode,omitempty"`
}

// Accuracy is the player's correct-answer percentage, 0 when unanswered.
func (p Player) Accuracy() int {
	if p.TotalAnswers == 0 {
		return 0
	}
	return int(float64(p.CorrectAnswers)/float64(p.TotalAnswers)*100 + 0.5)
}

// Choice is one selectable option of a single/boolean/multi question.
type Choice struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Blank is one gap of a fill-blank question, graded independently.
type Blank struct {
	ID            string   `json:"id"`
	Answer        string   `json:"answer"`
	CaseSensitive bool     `json:"caseSensitive,omitempty"`
	Accepted      []string `json:"accepted,omitempty"`
}

// MatchPair is one left/right pairing of a matching question.
type MatchPair struct {
	ID    string `json:"id"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

// Question is immutable quiz content, supplied by the content store.
// Which answer fields are populated depends on Type.
type Question struct {
	ID         string       `json:"id"`
	Type       QuestionType `json:"type"`
	Prompt     string       `json:"prompt"`
	Difficulty Difficulty   `json:"difficulty,omitempty"`
	Choices    []Choice     `json:"choices,omitempty"`
	Answer     string       `json:"answer,omitempty"`   // short_answer canonical text
	Accepted   []string     `json:"accepted,omitempty"` // short_answer alternates
	Ordering   []string     `json:"ordering,omitempty"` // canonical choice-id order
	Pairs      []MatchPair  `json:"pairs,omitempty"`
	Blanks     []Blank      `json:"blanks,omitempty"`
	TimeLimit  int          `json:"timeLimit,omitempty"` // per-question override, seconds
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Answer is a player's submitted value; exactly one field group is set,
// matching the question type.
type Answer struct {
	ChoiceID  string            `json:"choiceId,omitempty"`
	ChoiceIDs []string          `json:"choiceIds,omitempty"`
	Text      string            `json:"text,omitempty"`
	Ordering  []string          `json:"ordering,omitempty"`
	Matches   map[string]string `json:"matches,omitempty"` // pair id -> chosen right side
	Blanks    map[string]string `json:"blanks,omitempty"`  // blank id -> text
}

// PlayerAnswer is one player's frozen response to one question.
type PlayerAnswer struct {
	PlayerID      string        `json:"playerId"`
	QuestionIndex int           `json:"questionIndex"`
	Answer        Answer        `json:"answer"`
	AnsweredAt    int64         `json:"answeredAt"`
	ResponseMs    int           `json:"responseMs"`
	Correct       bool          `json:"correct"`
	Points        int           `json:"points"`
	StreakBonus   int           `json:"streakBonus,omitempty"`
	PowerUpsUsed  []PowerUpType `json:"powerUpsUsed,omitempty"`
}

// QuestionState is the live session data of the active question (synced mode).
type QuestionState struct {
	Index         int                     `json:"index"`
	Question      Question                `json:"question"`
	StartedAt     int64                   `json:"startedAt"`
	TimeLimit     int                     `json:"timeLimit"`
	TimeRemaining int                     `json:"timeRemaining"`
	IsPaused      bool                    `json:"isPaused"`
	Answers       map[string]PlayerAnswer `json:"answers,omitempty"` // player id -> answer
	AnswerCount   int                     `json:"answerCount"`
	CorrectCount  int                     `json:"correctCount"`
	Distribution  map[string][]string     `json:"distribution,omitempty"` // answer key -> player ids
}

// LeaderboardEntry is one derived ranking row; rebuilt whole, never patched.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	Score         int    `json:"score"`
	CorrectCount  int    `json:"correctCount"`
	TotalCount    int    `json:"totalCount"`
	Accuracy      int    `json:"accuracy"`
	AvgResponseMs int    `json:"avgResponseMs"`
	Streak        int    `json:"streak"`
	MaxStreak     int    `json:"maxStreak"`
	RankChange    int    `json:"rankChange"`  // positive = moved up
	ScoreChange   int    `json:"scoreChange"` // points gained since last build
}

// GameState is the authoritative record of one game instance.
type GameState struct {
	RoomID               string             `json:"roomId"`
	GameID               string             `json:"gameId"`
	Status               GameStatus         `json:"status"`
	ResumeStatus         GameStatus         `json:"resumeStatus,omitempty"` // state to return to after pause
	QuizID               string             `json:"quizId"`
	QuizTitle            string             `json:"quizTitle"`
	TotalQuestions       int                `json:"totalQuestions"`
	Questions            []Question         `json:"questions"` // snapshotted once at start
	CurrentQuestionIndex int                `json:"currentQuestionIndex"`
	CurrentQuestion      *QuestionState     `json:"currentQuestion,omitempty"`
	Players              map[string]Player  `json:"players,omitempty"`
	HostID               string             `json:"hostId"`
	Settings             RoomSettings       `json:"settings"`
	StartedAt            int64              `json:"startedAt,omitempty"`
	PausedAt             int64              `json:"pausedAt,omitempty"`
	PausedRemaining      int                `json:"pausedRemaining,omitempty"` // exact seconds saved on pause
	FinishedAt           int64              `json:"finishedAt,omitempty"`
	Leaderboard          []LeaderboardEntry `json:"leaderboard,omitempty"`
}
