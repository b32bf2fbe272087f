package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no active room matches the code or id.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPasswordRequired is returned when a private room is joined without a password.
	ErrPasswordRequired = errors.New("room requires password")
	// ErrWrongPassword is returned when the supplied password does not match.
	ErrWrongPassword = errors.New("wrong password")
	// ErrRoomFull is returned when the room is at capacity.
	ErrRoomFull = errors.New("room full")
	// ErrGameInProgress is returned when joining a playing room that disallows late join.
	ErrGameInProgress = errors.New("game in progress")
	// ErrNoActiveQuestion is returned when an answer arrives outside an answering window.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrAlreadyAnswered rejects a second submission for the same question.
	ErrAlreadyAnswered = errors.New("already answered")
	// ErrPlayerNotFound is returned when a player id is not in the room.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrNotInFreeMode is returned when a free-mode operation hits a synced room.
	ErrNotInFreeMode = errors.New("room is not in free mode")
	// ErrNotHost rejects host-only actions from other roles.
	ErrNotHost = errors.New("action requires host role")
	// ErrSpectator rejects gameplay actions from spectators.
	ErrSpectator = errors.New("spectators cannot play")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrGameNotFound is returned when no game state exists for the room.
	ErrGameNotFound = errors.New("game not found")
	// ErrPowerUpUnavailable is returned for a missing or already-used power-up.
	ErrPowerUpUnavailable = errors.New("power-up not available")
	// ErrInvalidRoom rejects room creation with missing or out-of-range parameters.
	ErrInvalidRoom = errors.New("invalid room parameters")
)
