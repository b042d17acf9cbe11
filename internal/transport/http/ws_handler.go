package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"physics-race-service/internal/app"
	"physics-race-service/internal/domain"
	"physics-race-service/internal/engine"
)

type WSHandler struct {
	competition *app.Competition
	upgrader    websocket.Upgrader
}

func NewWSHandler(competition *app.Competition) *WSHandler {
	return &WSHandler{
		competition: competition,
		upgrader:    newUpgrader(),
	}
}

func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type timePayload struct {
	T float64 `json:"t"`
}

type answerPayload struct {
	Value string `json:"value"`
}

type mutePayload struct {
	Muted bool `json:"muted"`
}

type streamPayload struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type joinedPayload struct {
	SessionID    string             `json:"sessionId"`
	Participant  domain.Participant `json:"participant"`
	Questions    int                `json:"questions"`
	LiveSessions int                `json:"liveSessions"`
}

type questionPayload struct {
	Question domain.Question `json:"question"`
	Attempt  int             `json:"attempt"`
}

type scorePayload struct {
	TotalScore int `json:"totalScore"`
}

type noticePayload struct {
	Message string `json:"message"`
}

type errorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

var errConnClosed = errors.New("connection closed")

// ServeWS upgrades HTTP requests to websockets and runs one engine session
// over the connection. The browser's video element acts as the player.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		http.Error(w, "missing participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// send is never closed: engine timers may still emit after the read
	// loop ends, so the writer stops on closeSignals instead.
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-closeSignals:
				flush(conn, send)
				return
			}
		}
	}()

	enqueue := func(msg outboundMessage[any]) error {
		select {
		case send <- msg:
			return nil
		case <-closeSignals:
			return errConnClosed
		case <-writerDone:
			return errConnClosed
		}
	}
	emit := func(typ string, payload any) {
		_ = enqueue(outboundMessage[any]{Type: typ, Payload: payload})
	}

	player := newRemotePlayer(enqueue)
	session, err := h.competition.Join(ctx, participantID, player, engine.Hooks{
		OnScoreChange:       func(total int) { emit("score", scorePayload{TotalScore: total}) },
		OnParticipantChange: func(p domain.Participant) { emit("participant", p) },
		OnQuestion: func(q domain.Question, attempt int) {
			emit("question", questionPayload{Question: q, Attempt: attempt})
		},
		OnFeedback:  func(f engine.Feedback) { emit("feedback", f) },
		OnNotice:    func(message string) { emit("notice", noticePayload{Message: message}) },
		OnCompleted: func(p domain.Participant) { emit("completed", p) },
	})
	if err != nil {
		emit("error", toErrorPayload(err))
		shutdown(closeSignals, writerDone)
		return
	}
	defer h.competition.Leave(context.Background(), session)

	updates, cancel, err := h.competition.Synchronizer().Subscribe(ctx)
	if err != nil {
		emit("error", toErrorPayload(err))
		shutdown(closeSignals, writerDone)
		return
	}
	defer cancel()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if enqueue(outboundMessage[any]{Type: "leaderboard", Payload: update}) != nil {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	emit("joined", joinedPayload{
		SessionID:    session.ID,
		Participant:  session.Participant,
		Questions:    session.Questions,
		LiveSessions: session.Live,
	})
	if session.Live > 1 {
		emit("notice", noticePayload{Message: "you are already competing in another window; progress is shared"})
	}

	machine := session.Machine
	if err := machine.Start(ctx); err != nil {
		emit("error", toErrorPayload(err))
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.handle(ctx, machine, player, inbound); err != nil {
			emit("error", toErrorPayload(err))
		}
	}

	shutdown(closeSignals, writerDone)
	<-updatesDone
}

func (h *WSHandler) handle(ctx context.Context, machine *engine.Machine, player *remotePlayer, inbound inboundMessage) error {
	switch inbound.Type {
	case "time":
		var payload timePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload("time")
		}
		player.observe(payload.T)
		return machine.Observe(ctx, payload.T)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload("answer")
		}
		_, err := machine.Submit(ctx, payload.Value)
		return err
	case "skip":
		_, err := machine.Skip(ctx)
		return err
	case "replay":
		return machine.ReplayScene(ctx)
	case "mute":
		var payload mutePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload("mute")
		}
		return machine.Mute(ctx, payload.Muted)
	case "stream":
		var payload streamPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errInvalidPayload("stream")
		}
		if payload.OK {
			return machine.Recover(ctx)
		}
		machine.StreamFailed(ctx, errors.New(payload.Message))
		return nil
	default:
		return errUnsupported
	}
}

var errUnsupported = errors.New("unsupported message type")

func errInvalidPayload(kind string) error {
	return errors.New("invalid " + kind + " payload")
}

// flush writes whatever was queued before the connection was shut down.
func flush(conn *websocket.Conn, send <-chan outboundMessage[any]) {
	for {
		select {
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func shutdown(closeSignals chan struct{}, writerDone <-chan struct{}) {
	close(closeSignals)
	<-writerDone
}

func toErrorPayload(err error) errorPayload {
	code := ""
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code = "invalid_input"
	case errors.Is(err, domain.ErrBusy):
		code = "busy"
	case errors.Is(err, domain.ErrNoOpenQuestion):
		code = "no_open_question"
	case errors.Is(err, domain.ErrStreamHalted), errors.Is(err, domain.ErrStream):
		code = "stream"
	case errors.Is(err, domain.ErrCompleted):
		code = "completed"
	case errors.Is(err, domain.ErrParticipantNotFound):
		code = "participant_not_found"
	case errors.Is(err, domain.ErrCatalogUnavailable):
		code = "catalog_unavailable"
	case errors.Is(err, engine.ErrClosed):
		code = "closed"
	}
	return errorPayload{Code: code, Message: err.Error()}
}
