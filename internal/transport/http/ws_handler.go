package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/store"
)

// WSHandler is the single client boundary: every room and game intent
// arrives as a message on the socket, and every state change goes back out
// on it. Clients never write game state themselves.
type WSHandler struct {
	rooms    *app.RoomService
	engine   *app.GameEngine
	store    store.Store
	upgrader websocket.Upgrader
}

func NewWSHandler(rooms *app.RoomService, engine *app.GameEngine, st store.Store) *WSHandler {
	return &WSHandler{
		rooms:  rooms,
		engine: engine,
		store:  st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type createRoomPayload struct {
	Name       string               `json:"name"`
	QuizID     string               `json:"quizId"`
	MaxPlayers int                  `json:"maxPlayers"`
	IsPrivate  bool                 `json:"isPrivate"`
	Password   string               `json:"password"`
	Settings   *domain.RoomSettings `json:"settings"`
}

type joinRoomPayload struct {
	RoomID      string `json:"roomId"`
	Code        string `json:"code"`
	Password    string `json:"password"`
	AsSpectator bool   `json:"asSpectator"`
}

type submitAnswerPayload struct {
	Answer domain.Answer `json:"answer"`
}

type usePowerUpPayload struct {
	Type domain.PowerUpType `json:"type"`
}

type setReadyPayload struct {
	Ready bool `json:"ready"`
}

type kickPlayerPayload struct {
	PlayerID string `json:"playerId"`
}

type roomPayload struct {
	Room   domain.Room   `json:"room"`
	Player domain.Player `json:"player"`
}

// session is the per-connection state: who this socket speaks for and which
// room it is attached to.
type session struct {
	clientID string
	playerID string
	name     string
	avatar   string

	roomID      string
	unsubscribe func()

	send      chan outboundMessage
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *session) push(msg outboundMessage) {
	select {
	case s.send <- msg:
	case <-s.done:
	}
}

// ServeWS upgrades the request and runs the connection's read loop. The
// query identifies the player; room membership is established by messages.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	name := r.URL.Query().Get("name")
	if playerID == "" || name == "" {
		http.Error(w, "missing playerId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess := &session{
		clientID: uuid.NewString(),
		playerID: playerID,
		name:     name,
		avatar:   r.URL.Query().Get("avatar"),
		send:     make(chan outboundMessage, 32),
		done:     make(chan struct{}),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range sess.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r.Context(), sess, inbound)
	}

	h.teardown(sess)
	close(sess.send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, sess *session, msg inboundMessage) {
	var err error
	switch msg.Type {
	case "createRoom":
		err = h.createRoom(ctx, sess, msg.Payload)
	case "joinRoom":
		err = h.joinRoom(ctx, sess, msg.Payload)
	case "leaveRoom":
		err = h.leaveRoom(ctx, sess)
	case "setReady":
		var p setReadyPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = h.rooms.SetReady(ctx, sess.roomID, sess.playerID, p.Ready)
		}
	case "startGame":
		err = h.engine.StartGame(ctx, sess.roomID, sess.playerID)
	case "pauseGame":
		err = h.engine.PauseGame(ctx, sess.roomID, sess.playerID)
	case "resumeGame":
		err = h.engine.ResumeGame(ctx, sess.roomID, sess.playerID)
	case "skipQuestion":
		err = h.engine.SkipQuestion(ctx, sess.roomID, sess.playerID)
	case "endGame":
		err = h.engine.EndGame(ctx, sess.roomID, sess.playerID)
	case "kickPlayer":
		var p kickPlayerPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			err = h.rooms.KickPlayer(ctx, sess.roomID, sess.playerID, p.PlayerID)
		}
	case "submitAnswer":
		var p submitAnswerPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			var pa domain.PlayerAnswer
			pa, err = h.engine.SubmitAnswer(ctx, sess.roomID, sess.playerID, p.Answer)
			if err == nil {
				sess.push(outboundMessage{Type: "answerResult", Payload: pa})
			}
		}
	case "usePowerUp":
		var p usePowerUpPayload
		if err = json.Unmarshal(msg.Payload, &p); err == nil {
			var result domain.PowerUpResult
			result, err = h.engine.UsePowerUp(ctx, sess.roomID, sess.playerID, p.Type)
			if err == nil {
				sess.push(outboundMessage{Type: "powerUpResult", Payload: result})
			}
		}
	default:
		sess.push(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		return
	}
	if err != nil {
		sess.push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}
}

func (h *WSHandler) createRoom(ctx context.Context, sess *session, raw json.RawMessage) error {
	var p createRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	room, player, err := h.rooms.CreateRoom(ctx, app.CreateRoomParams{
		Name:          p.Name,
		HostID:        sess.playerID,
		HostName:      sess.name,
		HostAvatarURL: sess.avatar,
		QuizID:        p.QuizID,
		MaxPlayers:    p.MaxPlayers,
		IsPrivate:     p.IsPrivate,
		Password:      p.Password,
		Settings:      p.Settings,
	})
	if err != nil {
		return err
	}
	h.attach(ctx, sess, room.ID)
	sess.push(outboundMessage{Type: "roomCreated", Payload: roomPayload{Room: room, Player: player}})
	return nil
}

func (h *WSHandler) joinRoom(ctx context.Context, sess *session, raw json.RawMessage) error {
	var p joinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	room, player, err := h.rooms.JoinRoom(ctx, app.JoinRoomParams{
		RoomID:      p.RoomID,
		Code:        strings.ToUpper(strings.TrimSpace(p.Code)),
		PlayerID:    sess.playerID,
		Name:        sess.name,
		AvatarURL:   sess.avatar,
		Password:    p.Password,
		AsSpectator: p.AsSpectator,
	})
	if err != nil {
		return err
	}
	h.attach(ctx, sess, room.ID)
	sess.push(outboundMessage{Type: "joined", Payload: roomPayload{Room: room, Player: player}})
	return nil
}

// attach subscribes the connection to its room's subtree and marks the
// player present. Every change under games/{room} fans back out here: event
// pushes go out as discrete events, anything else as a fresh state snapshot.
func (h *WSHandler) attach(ctx context.Context, sess *session, roomID string) {
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	sess.roomID = roomID

	updates, cancel := h.store.Subscribe(store.GamePath(roomID))
	sess.unsubscribe = cancel
	h.rooms.SetPresence(ctx, sess.clientID, roomID, sess.playerID, true)

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		eventsPrefix := store.EventsPath(roomID) + "/"
		for snap := range updates {
			if strings.HasPrefix(snap.Path, eventsPrefix) {
				if snap.Value == nil {
					continue
				}
				var ev domain.GameEvent
				if err := json.Unmarshal(snap.Value, &ev); err != nil {
					continue
				}
				ev.ID = strings.TrimPrefix(snap.Path, eventsPrefix)
				sess.push(outboundMessage{Type: "event", Payload: ev})
				continue
			}
			state, err := h.loadState(roomID)
			if err != nil {
				continue
			}
			sess.push(outboundMessage{Type: "gameState", Payload: sanitizeState(state)})
		}
	}()

	// Initial snapshot so the client does not wait for the next change.
	if state, err := h.loadState(roomID); err == nil {
		sess.push(outboundMessage{Type: "gameState", Payload: sanitizeState(state)})
	}
}

func (h *WSHandler) loadState(roomID string) (domain.GameState, error) {
	var state domain.GameState
	err := h.store.Get(context.Background(), store.GamePath(roomID), &state)
	return state, err
}

func (h *WSHandler) teardown(sess *session) {
	sess.closeOnce.Do(func() { close(sess.done) })
	if sess.unsubscribe != nil {
		sess.unsubscribe()
		sess.unsubscribe = nil
	}
	sess.wg.Wait()
	if sess.roomID != "" {
		h.rooms.SetPresence(context.Background(), sess.clientID, sess.roomID, sess.playerID, false)
	}
	h.store.FireDisconnects(sess.clientID)
}

func (h *WSHandler) leaveRoom(ctx context.Context, sess *session) error {
	if sess.roomID == "" {
		return domain.ErrRoomNotFound
	}
	roomID := sess.roomID
	if sess.unsubscribe != nil {
		sess.unsubscribe()
		sess.unsubscribe = nil
	}
	sess.roomID = ""
	return h.rooms.LeaveRoom(ctx, roomID, sess.playerID)
}

// sanitizeState strips answer keys from outgoing state while a question is
// live. Once the game reaches review (or ends) the content is fair to show.
func sanitizeState(state domain.GameState) domain.GameState {
	reveal := state.Status == domain.GameReviewing ||
		state.Status == domain.GameLeaderboard ||
		state.Status == domain.GameFinished

	// The full question list never leaves the server before the end.
	if state.Status != domain.GameFinished {
		state.Questions = nil
	}

	if state.CurrentQuestion != nil && !reveal {
		qs := *state.CurrentQuestion
		qs.Question = sanitizeQuestion(qs.Question)
		qs.Answers = nil
		state.CurrentQuestion = &qs
	}
	if !reveal {
		players := make(map[string]domain.Player, len(state.Players))
		for id, p := range state.Players {
			if p.FreeMode != nil {
				fm := *p.FreeMode
				fm.Answers = nil
				p.FreeMode = &fm
			}
			players[id] = p
		}
		state.Players = players
	}
	return state
}

func sanitizeQuestion(q domain.Question) domain.Question {
	choices := make([]domain.Choice, len(q.Choices))
	for i, c := range q.Choices {
		c.Correct = false
		choices[i] = c
	}
	q.Choices = choices
	q.Answer = ""
	q.Accepted = nil
	q.Ordering = nil

	// Matching: the right-hand options must be visible, the pairing must
	// not. Reattach rights in sorted order so the association is destroyed.
	if len(q.Pairs) > 0 {
		rights := make([]string, len(q.Pairs))
		for i, p := range q.Pairs {
			rights[i] = p.Right
		}
		sort.Strings(rights)
		pairs := make([]domain.MatchPair, len(q.Pairs))
		for i, p := range q.Pairs {
			p.Right = rights[i]
			pairs[i] = p
		}
		q.Pairs = pairs
	}

	blanks := make([]domain.Blank, len(q.Blanks))
	for i, b := range q.Blanks {
		b.Answer = ""
		b.Accepted = nil
		blanks[i] = b
	}
	q.Blanks = blanks
	return q
}
