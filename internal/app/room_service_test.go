package app

import (
	"context"
	"errors"
	"testing"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/store"
)

func TestCreateRoomValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []CreateRoomParams{
		{HostID: "h", HostName: "H", QuizID: "quiz-1"},                                   // no name
		{Name: "r", HostName: "H", QuizID: "quiz-1"},                                     // no host id
		{Name: "r", HostID: "h", HostName: "H"},                                          // no quiz
		{Name: "r", HostID: "h", HostName: "H", QuizID: "quiz-1", IsPrivate: true},       // private, no password
		{Name: "r", HostID: "h", HostName: "H", QuizID: "quiz-1", MaxPlayers: 1},         // below minimum
		{Name: "r", HostID: "h", HostName: "H", QuizID: "quiz-1", MaxPlayers: 100},       // above cap
	}
	for i, p := range cases {
		if _, _, err := e.rooms.CreateRoom(ctx, p); !errors.Is(err, domain.ErrInvalidRoom) {
			t.Fatalf("case %d: %v", i, err)
		}
	}
}

func TestCreateRoomClaimsUniqueCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		room, _, err := e.rooms.CreateRoom(ctx, CreateRoomParams{
			Name: "r", HostID: "h" + string(rune('a'+i)), HostName: "H", QuizID: "quiz-1",
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if len(room.Code) != 6 {
			t.Fatalf("code %q", room.Code)
		}
		if seen[room.Code] {
			t.Fatalf("code %s reused", room.Code)
		}
		seen[room.Code] = true

		var owner string
		if err := e.st.Get(ctx, store.RoomCodePath(room.Code), &owner); err != nil || owner != room.ID {
			t.Fatalf("code index owner %q, err %v", owner, err)
		}
	}
}

func TestJoinRoomErrorOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	join := func(p JoinRoomParams) error {
		_, _, err := e.rooms.JoinRoom(ctx, p)
		return err
	}

	if err := join(JoinRoomParams{Code: "NOPE42", PlayerID: "p1", Name: "Ada"}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("unknown code: %v", err)
	}

	settings := fastSettings()
	settings.AllowLateJoin = false
	room, _, err := e.rooms.CreateRoom(ctx, CreateRoomParams{
		Name: "private", HostID: "host", HostName: "H", QuizID: "quiz-1",
		MaxPlayers: 2, IsPrivate: true, Password: "sesame", Settings: settings,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := join(JoinRoomParams{Code: room.Code, PlayerID: "p1", Name: "Ada"}); !errors.Is(err, domain.ErrPasswordRequired) {
		t.Fatalf("no password: %v", err)
	}
	if err := join(JoinRoomParams{Code: room.Code, PlayerID: "p1", Name: "Ada", Password: "wrong"}); !errors.Is(err, domain.ErrWrongPassword) {
		t.Fatalf("wrong password: %v", err)
	}
	if err := join(JoinRoomParams{Code: room.Code, PlayerID: "p1", Name: "Ada", Password: "sesame"}); err != nil {
		t.Fatalf("valid join: %v", err)
	}

	// Room is now at its 2-player capacity.
	if err := join(JoinRoomParams{Code: room.Code, PlayerID: "p2", Name: "Bo", Password: "sesame"}); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("full room: %v", err)
	}

	// Spectators bypass the capacity check.
	if err := join(JoinRoomParams{Code: room.Code, PlayerID: "s1", Name: "Watcher", Password: "sesame", AsSpectator: true}); err != nil {
		t.Fatalf("spectator join: %v", err)
	}
}

func TestJoinRoomLateJoinRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	settings := fastSettings()
	settings.AllowLateJoin = false
	room := e.createRoom(t, settings)
	_ = e.engine.StartGame(ctx, room.ID, "host")
	e.waitQuestion(t, room.ID, 0)

	_, _, err := e.rooms.JoinRoom(ctx, JoinRoomParams{Code: room.Code, PlayerID: "late", Name: "Late"})
	if !errors.Is(err, domain.ErrGameInProgress) {
		t.Fatalf("late join closed room: %v", err)
	}

	open := fastSettings() // AllowLateJoin on
	room2 := e.createRoom(t, open)
	_ = e.engine.StartGame(ctx, room2.ID, "host")
	e.waitQuestion(t, room2.ID, 0)

	if _, _, err := e.rooms.JoinRoom(ctx, JoinRoomParams{Code: room2.Code, PlayerID: "late", Name: "Late"}); err != nil {
		t.Fatalf("late join open room: %v", err)
	}
}

func TestJoinRoomReconnect(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := e.createRoom(t, fastSettings())
	e.join(t, room.Code, "p1", "Ada")

	// Same player joining again is a reconnect, not a duplicate.
	_, player, err := e.rooms.JoinRoom(ctx, JoinRoomParams{Code: room.Code, PlayerID: "p1", Name: "Ada"})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !player.IsOnline {
		t.Fatalf("reconnect should be online")
	}
	state := e.game(t, room.ID)
	if len(state.Players) != 2 {
		t.Fatalf("players %d after rejoin", len(state.Players))
	}
}

func TestLeaveLastPlayerTearsDownRoom(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := e.createRoom(t, fastSettings())

	if err := e.rooms.LeaveRoom(ctx, room.ID, "host"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	if _, err := e.rooms.GetRoom(ctx, room.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("room should be gone: %v", err)
	}
	if _, err := e.rooms.GetRoomByCode(ctx, room.Code); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("code should be released: %v", err)
	}

	var state domain.GameState
	if err := e.st.Get(ctx, store.GamePath(room.ID), &state); !errors.Is(err, store.ErrPathNotFound) {
		t.Fatalf("game state should be gone: %v", err)
	}
}

func TestKickPlayerHostOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := e.createRoom(t, fastSettings())
	e.join(t, room.Code, "p1", "Ada")
	e.join(t, room.Code, "p2", "Bo")

	if err := e.rooms.KickPlayer(ctx, room.ID, "p1", "p2"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("non-host kick: %v", err)
	}
	if err := e.rooms.KickPlayer(ctx, room.ID, "host", "host"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("self kick: %v", err)
	}
	if err := e.rooms.KickPlayer(ctx, room.ID, "host", "p2"); err != nil {
		t.Fatalf("kick: %v", err)
	}

	state := e.game(t, room.ID)
	if _, ok := state.Players["p2"]; ok {
		t.Fatalf("p2 still in game")
	}

	var events map[string]domain.GameEvent
	_ = e.st.Get(ctx, store.EventsPath(room.ID), &events)
	kicked := false
	for _, ev := range events {
		if ev.Type == domain.EventPlayerKicked && ev.PlayerID == "p2" {
			kicked = true
		}
	}
	if !kicked {
		t.Fatalf("no player_kicked event")
	}
}

func TestPresenceDisconnectHook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := e.createRoom(t, fastSettings())
	e.join(t, room.Code, "p1", "Ada")

	e.rooms.SetPresence(ctx, "client-1", room.ID, "p1", true)

	var rec domain.Presence
	if err := e.st.Get(ctx, store.PresencePath(room.ID, "p1"), &rec); err != nil || !rec.Online {
		t.Fatalf("presence %+v, err %v", rec, err)
	}

	// Simulated connection drop.
	e.st.FireDisconnects("client-1")
	if err := e.st.Get(ctx, store.PresencePath(room.ID, "p1"), &rec); err != nil || rec.Online {
		t.Fatalf("presence after drop %+v, err %v", rec, err)
	}
}
