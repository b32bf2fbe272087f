package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/store"
)

// Join codes avoid 0/O/1/I so they survive being read out loud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength       = 6
	codeRetries      = 5
	minPlayers       = 2
	maxPlayersCap    = 50
	defaultMaxPlayer = 8
)

var errCodeTaken = errors.New("join code taken")

// RoomService owns the room directory: creating, joining, and leaving
// rooms, the join-code index, and presence bookkeeping. Gameplay is the
// GameEngine's job; the service hands players over to it.
type RoomService struct {
	store  store.Store
	engine *GameEngine
	now    func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRoomService(st store.Store, engine *GameEngine) *RoomService {
	return &RoomService{
		store:  st,
		engine: engine,
		now:    time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type CreateRoomParams struct {
	Name          string
	HostID        string
	HostName      string
	HostAvatarURL string
	QuizID        string
	MaxPlayers    int
	IsPrivate     bool
	Password      string
	Settings      *domain.RoomSettings
}

// CreateRoom registers a new room with its creator as host and initializes
// the lobby-state game record. The join code is claimed atomically, so two
// concurrent creations can never share a code.
func (s *RoomService) CreateRoom(ctx context.Context, p CreateRoomParams) (domain.Room, domain.Player, error) {
	var zeroRoom domain.Room
	var zeroPlayer domain.Player
	if p.Name == "" || p.HostID == "" || p.HostName == "" || p.QuizID == "" {
		return zeroRoom, zeroPlayer, domain.ErrInvalidRoom
	}
	if p.IsPrivate && p.Password == "" {
		return zeroRoom, zeroPlayer, domain.ErrInvalidRoom
	}
	maxPlayers := p.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = defaultMaxPlayer
	}
	if maxPlayers < minPlayers || maxPlayers > maxPlayersCap {
		return zeroRoom, zeroPlayer, domain.ErrInvalidRoom
	}

	settings := domain.DefaultRoomSettings()
	if p.Settings != nil {
		settings = *p.Settings
	}

	now := s.now().UnixMilli()
	room := domain.Room{
		ID:         newID(),
		Name:       p.Name,
		HostID:     p.HostID,
		QuizID:     p.QuizID,
		MaxPlayers: maxPlayers,
		IsPrivate:  p.IsPrivate,
		Status:     domain.RoomWaiting,
		Settings:   settings,
		CreatedAt:  now,
	}
	if p.IsPrivate {
		salt := newID()
		room.PasswordSalt = salt
		room.PasswordHash = hashPassword(salt, p.Password)
	}

	code, err := s.claimCode(ctx, room.ID)
	if err != nil {
		return zeroRoom, zeroPlayer, err
	}
	room.Code = code

	host := domain.Player{
		ID:           p.HostID,
		Name:         p.HostName,
		AvatarURL:    p.HostAvatarURL,
		Role:         domain.RoleHost,
		IsOnline:     true,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	if settings.PowerUpsEnabled {
		host.PowerUps = defaultPowerUps()
	}

	if err := s.store.Set(ctx, store.RoomPath(room.ID), room); err != nil {
		return zeroRoom, zeroPlayer, err
	}
	if err := s.store.Set(ctx, store.RoomPlayerPath(room.ID, host.ID), rosterEntry(host)); err != nil {
		return zeroRoom, zeroPlayer, err
	}
	if err := s.engine.InitializeGame(ctx, room, host); err != nil {
		return zeroRoom, zeroPlayer, err
	}
	return room, host, nil
}

// claimCode generates join codes until one is atomically claimed.
func (s *RoomService) claimCode(ctx context.Context, roomID string) (string, error) {
	for i := 0; i < codeRetries; i++ {
		code := s.generateCode()
		err := s.store.Transact(ctx, store.RoomCodePath(code), func(current []byte) (any, error) {
			if current != nil {
				return nil, errCodeTaken
			}
			return roomID, nil
		})
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, errCodeTaken) {
			return "", err
		}
	}
	return "", errCodeTaken
}

func (s *RoomService) generateCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[s.rnd.Intn(len(codeAlphabet))]
	}
	return string(b)
}

type JoinRoomParams struct {
	RoomID      string // either RoomID or Code identifies the room
	Code        string
	PlayerID    string
	Name        string
	AvatarURL   string
	Password    string
	AsSpectator bool
}

// JoinRoom admits a player into a room. Checks run in a fixed order so a
// caller always gets the same error for the same room state: existence,
// then password, then capacity, then game progress. Spectators skip the
// capacity and progress checks. Rejoining an existing membership is treated
// as a reconnect, not an error.
func (s *RoomService) JoinRoom(ctx context.Context, p JoinRoomParams) (domain.Room, domain.Player, error) {
	var zeroRoom domain.Room
	var zeroPlayer domain.Player

	roomID := p.RoomID
	if roomID == "" {
		if err := s.store.Get(ctx, store.RoomCodePath(p.Code), &roomID); err != nil {
			return zeroRoom, zeroPlayer, domain.ErrRoomNotFound
		}
	}
	var room domain.Room
	if err := s.store.Get(ctx, store.RoomPath(roomID), &room); err != nil {
		return zeroRoom, zeroPlayer, domain.ErrRoomNotFound
	}

	if room.IsPrivate && room.PasswordHash != "" {
		if p.Password == "" {
			return zeroRoom, zeroPlayer, domain.ErrPasswordRequired
		}
		if hashPassword(room.PasswordSalt, p.Password) != room.PasswordHash {
			return zeroRoom, zeroPlayer, domain.ErrWrongPassword
		}
	}

	// Reconnect path: the player is already a member.
	var existing domain.Player
	err := s.store.Get(ctx, store.GamePlayerPath(roomID, p.PlayerID), &existing)
	if err == nil {
		if err := s.engine.SetOnline(ctx, roomID, p.PlayerID, true); err != nil {
			return zeroRoom, zeroPlayer, err
		}
		existing.IsOnline = true
		return room, existing, nil
	}
	if !errors.Is(err, store.ErrPathNotFound) {
		return zeroRoom, zeroPlayer, err
	}

	if !p.AsSpectator {
		count, err := s.playerCount(ctx, roomID)
		if err != nil {
			return zeroRoom, zeroPlayer, err
		}
		if count >= room.MaxPlayers {
			return zeroRoom, zeroPlayer, domain.ErrRoomFull
		}
		if room.Status != domain.RoomWaiting && !room.Settings.AllowLateJoin {
			return zeroRoom, zeroPlayer, domain.ErrGameInProgress
		}
	}
	if room.Status == domain.RoomFinished {
		return zeroRoom, zeroPlayer, domain.ErrGameInProgress
	}

	now := s.now().UnixMilli()
	role := domain.RolePlayer
	if p.AsSpectator {
		role = domain.RoleSpectator
	}
	player := domain.Player{
		ID:           p.PlayerID,
		Name:         p.Name,
		AvatarURL:    p.AvatarURL,
		Role:         role,
		IsOnline:     true,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	if err := s.engine.AddPlayer(ctx, roomID, player); err != nil {
		return zeroRoom, zeroPlayer, err
	}
	if err := s.store.Set(ctx, store.RoomPlayerPath(roomID, player.ID), rosterEntry(player)); err != nil {
		return zeroRoom, zeroPlayer, err
	}
	return room, player, nil
}

// LeaveRoom withdraws a player. The last player out of a waiting room tears
// the whole room down, join code included.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	var room domain.Room
	if err := s.store.Get(ctx, store.RoomPath(roomID), &room); err != nil {
		return domain.ErrRoomNotFound
	}
	if err := s.engine.RemovePlayer(ctx, roomID, playerID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.RoomPlayerPath(roomID, playerID)); err != nil {
		return err
	}
	_ = s.store.Delete(ctx, store.PresencePath(roomID, playerID))

	count, err := s.playerCount(ctx, roomID)
	if err != nil {
		return err
	}
	if count == 0 && room.Status == domain.RoomWaiting {
		return s.teardown(ctx, room)
	}
	return nil
}

// KickPlayer ejects a player at the host's request.
func (s *RoomService) KickPlayer(ctx context.Context, roomID, requesterID, targetID string) error {
	if err := s.engine.KickPlayer(ctx, roomID, requesterID, targetID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.RoomPlayerPath(roomID, targetID)); err != nil {
		return err
	}
	_ = s.store.Delete(ctx, store.PresencePath(roomID, targetID))
	return nil
}

// SetReady forwards a lobby ready toggle to the engine.
func (s *RoomService) SetReady(ctx context.Context, roomID, playerID string, ready bool) error {
	return s.engine.SetReady(ctx, roomID, playerID, ready)
}

// SetPresence records liveness for a connected client and arms a disconnect
// hook that flips the record offline if the connection dies. Presence is
// best effort: a failed write is logged, never surfaced, because gameplay
// must not fail on liveness bookkeeping.
func (s *RoomService) SetPresence(ctx context.Context, clientID, roomID, playerID string, online bool) {
	rec := domain.Presence{
		PlayerID: playerID,
		Online:   online,
		LastSeen: s.now().UnixMilli(),
	}
	if err := s.store.Set(ctx, store.PresencePath(roomID, playerID), rec); err != nil {
		log.Printf("room %s: presence write for %s: %v", roomID, playerID, err)
	}
	if online {
		s.store.RegisterDisconnect(clientID, store.PresencePath(roomID, playerID), domain.Presence{
			PlayerID: playerID,
			Online:   false,
			LastSeen: rec.LastSeen,
		})
	}
	if err := s.engine.SetOnline(ctx, roomID, playerID, online); err != nil {
		log.Printf("room %s: online flag for %s: %v", roomID, playerID, err)
	}
}

// GetRoom loads a room by id.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	var room domain.Room
	if err := s.store.Get(ctx, store.RoomPath(roomID), &room); err != nil {
		return room, domain.ErrRoomNotFound
	}
	return room, nil
}

// GetRoomByCode resolves a join code to its room.
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	var roomID string
	if err := s.store.Get(ctx, store.RoomCodePath(code), &roomID); err != nil {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return s.GetRoom(ctx, roomID)
}

func (s *RoomService) playerCount(ctx context.Context, roomID string) (int, error) {
	var roster map[string]rosterRecord
	err := s.store.Get(ctx, store.RoomPlayersPath(roomID), &roster)
	if errors.Is(err, store.ErrPathNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range roster {
		if r.Role != domain.RoleSpectator {
			count++
		}
	}
	return count, nil
}

func (s *RoomService) teardown(ctx context.Context, room domain.Room) error {
	if err := s.store.Delete(ctx, store.RoomCodePath(room.Code)); err != nil {
		return err
	}
	if err := s.store.DeleteTree(ctx, store.GamePath(room.ID)); err != nil {
		return err
	}
	return s.store.DeleteTree(ctx, store.RoomPath(room.ID))
}

// rosterRecord is the lightweight directory view of a member, enough for a
// lobby listing without loading game state.
type rosterRecord struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	AvatarURL string      `json:"avatarUrl,omitempty"`
	Role      domain.Role `json:"role"`
	JoinedAt  int64       `json:"joinedAt"`
}

func rosterEntry(p domain.Player) rosterRecord {
	return rosterRecord{
		ID:        p.ID,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Role:      p.Role,
		JoinedAt:  p.JoinedAt,
	}
}

func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}
