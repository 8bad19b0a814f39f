package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	lookupTimeout  = 5 * time.Second
)

// Presence states a client may announce.
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

// TokenValidator resolves a bearer token to the profile id it was issued for.
type TokenValidator interface {
	ValidateAccessToken(token string) (uuid.UUID, error)
}

// Directory answers the membership questions the socket server needs.
type Directory interface {
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	Partners(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// SocketServer upgrades authenticated requests to websockets and handles
// client-originated events.
type SocketServer struct {
	relay    *Relay
	hub      *Hub
	tokens   TokenValidator
	dir      Directory
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time
}

func NewSocketServer(r *Relay, tokens TokenValidator, dir Directory, allowedOrigins []string, logger *slog.Logger) *SocketServer {
	s := &SocketServer{
		relay:  r,
		hub:    r.Hub(),
		tokens: tokens,
		dir:    dir,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[strings.TrimRight(origin, "/")]
	}
}

func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.tokens.ValidateAccessToken(tokenFromRequest(r))
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	// registered before the handshake completes so nothing routed to the
	// user room after the client sees the upgrade is missed
	client := s.hub.Register(userID.String())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.Unregister(client)
		s.logger.Debug("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	s.logger.Info("socket connected", "user_id", userID)
	go s.writePump(conn, client)
	s.readPump(conn, client, userID)
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (s *SocketServer) readPump(conn *websocket.Conn, c *Client, userID uuid.UUID) {
	defer func() {
		s.hub.Unregister(c)
		_ = conn.Close()
		s.announce(userID, PresenceOffline)
		s.logger.Info("socket disconnected", "user_id", userID)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("socket read failed", "user_id", userID, "err", err)
			}
			return
		}
		var in Frame
		if err := json.Unmarshal(msg, &in); err != nil {
			s.reply(c, EventError, map[string]string{"message": "malformed frame"})
			continue
		}
		if err := s.handle(c, userID, in); err != nil {
			s.reply(c, EventError, map[string]string{"event": in.Event, "message": err.Error()})
		}
	}
}

func (s *SocketServer) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var (
	errNotParticipant = errors.New("not a participant of this conversation")
	errBadEvent       = errors.New("malformed event data")
	errUnknownEvent   = errors.New("unknown event")
)

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

type signal struct {
	To        string          `json:"to"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type presenceUpdate struct {
	Status string `json:"status"`
}

func (s *SocketServer) handle(c *Client, userID uuid.UUID, in Frame) error {
	switch in.Event {
	case EventJoin:
		convID, err := s.conversation(userID, in.Data)
		if err != nil {
			return err
		}
		s.hub.Join(c, ConversationRoom(convID.String()))
		s.reply(c, EventJoined, conversationRef{ConversationID: convID.String()})
		return nil

	case EventLeave:
		var ref conversationRef
		if err := json.Unmarshal(in.Data, &ref); err != nil || ref.ConversationID == "" {
			return errBadEvent
		}
		s.hub.Leave(c, ConversationRoom(ref.ConversationID))
		s.reply(c, EventLeft, ref)
		return nil

	case EventTypingStart, EventTypingStop:
		convID, err := s.conversation(userID, in.Data)
		if err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"userId":         userID.String(),
			"conversationId": convID.String(),
		})
		s.relay.Emit(context.Background(), Delivery{
			Room:    ConversationRoom(convID.String()),
			Event:   in.Event,
			Data:    data,
			Exclude: userID.String(),
		})
		return nil

	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCICE:
		return s.forwardSignal(userID, in)

	case EventPresence:
		var p presenceUpdate
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return errBadEvent
		}
		switch p.Status {
		case PresenceOnline, PresenceAway, PresenceOffline:
		default:
			return errBadEvent
		}
		s.announce(userID, p.Status)
		return nil
	}
	return errUnknownEvent
}

// conversation decodes a conversation reference and checks the user belongs
// to it.
func (s *SocketServer) conversation(userID uuid.UUID, raw json.RawMessage) (uuid.UUID, error) {
	var ref conversationRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return uuid.Nil, errBadEvent
	}
	convID, err := uuid.Parse(ref.ConversationID)
	if err != nil {
		return uuid.Nil, errBadEvent
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	ok, err := s.dir.IsParticipant(ctx, convID, userID)
	if err != nil {
		s.logger.Error("participant lookup failed", "conversation_id", convID, "err", err)
		return uuid.Nil, errors.New("lookup failed")
	}
	if !ok {
		return uuid.Nil, errNotParticipant
	}
	return convID, nil
}

func (s *SocketServer) forwardSignal(from uuid.UUID, in Frame) error {
	var sig signal
	if err := json.Unmarshal(in.Data, &sig); err != nil {
		return errBadEvent
	}
	to, err := uuid.Parse(sig.To)
	if err != nil {
		return errBadEvent
	}

	out := map[string]any{"from": from.String()}
	switch in.Event {
	case EventWebRTCOffer:
		out["offer"] = sig.Offer
	case EventWebRTCAnswer:
		out["answer"] = sig.Answer
	case EventWebRTCICE:
		out["candidate"] = sig.Candidate
	}
	data, err := json.Marshal(out)
	if err != nil {
		return errBadEvent
	}
	s.relay.Emit(context.Background(), Delivery{Room: UserRoom(to.String()), Event: in.Event, Data: data})
	return nil
}

// announce sends a presence update to the user rooms of everyone the user
// has matched with.
func (s *SocketServer) announce(userID uuid.UUID, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	partners, err := s.dir.Partners(ctx, userID)
	if err != nil {
		s.logger.Error("partner lookup failed", "user_id", userID, "err", err)
		return
	}
	data, _ := json.Marshal(map[string]string{
		"userId":    userID.String(),
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
	})
	for _, p := range partners {
		s.relay.Emit(ctx, Delivery{Room: UserRoom(p.String()), Event: EventPresence, Data: data})
	}
}

// reply queues a frame for this socket only.
func (s *SocketServer) reply(c *Client, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
		s.hub.dropped.Add(1)
	}
}
