package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/soulmate-hub/internal/logger"
	"github.com/oggyb/soulmate-hub/internal/testutil"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestRoute_EveryChannel(t *testing.T) {
	a, b, id := uuid.NewString(), uuid.NewString(), uuid.NewString()

	tests := []struct {
		channel string
		payload any
		room    string
		event   string
		want    map[string]any
	}{
		{
			channel: ChannelProfileChanges,
			payload: ProfileChange{UserID: a, Data: json.RawMessage(`{"name":"Ann"}`)},
			room:    UserRoom(a),
			event:   EventProfileUpdate,
			want:    map[string]any{"name": "Ann"},
		},
		{
			channel: ChannelNewMessage,
			payload: NewMessage{ConversationID: id, SenderID: a, Message: json.RawMessage(`{"content":"hi"}`)},
			room:    ConversationRoom(id),
			event:   EventMessageNew,
			want:    map[string]any{"content": "hi"},
		},
		{
			channel: ChannelNewMatch,
			payload: NewMatch{UserID: a, MatchedWith: b, MatchID: id},
			room:    UserRoom(a),
			event:   EventMatchNew,
			want:    map[string]any{"matchedWith": b, "matchId": id},
		},
		{
			channel: ChannelNewGuest,
			payload: NewGuest{UserID: a, GuestID: b, CreatedAt: "2024-01-01T00:00:00Z"},
			room:    UserRoom(a),
			event:   EventGuestNew,
			want:    map[string]any{"guestId": b, "createdAt": "2024-01-01T00:00:00Z"},
		},
		{
			channel: ChannelSuperLike,
			payload: SuperLike{ToUserID: b, FromUserID: a, CreatedAt: "t"},
			room:    UserRoom(b),
			event:   EventSuperLikeNew,
			want:    map[string]any{"fromUserId": a, "createdAt": "t"},
		},
		{
			channel: ChannelProfileView,
			payload: ProfileView{ViewedID: b, ViewerID: a, CreatedAt: "t"},
			room:    UserRoom(b),
			event:   EventProfileViewed,
			want:    map[string]any{"viewerId": a, "createdAt": "t"},
		},
		{
			channel: ChannelCallSignal,
			payload: CallSignal{ReceiverID: b, CallerID: a, CallType: "video", Status: "ringing", SessionID: "s1"},
			room:    UserRoom(b),
			event:   EventCallSignal,
			want:    map[string]any{"callerId": a, "callType": "video", "status": "ringing", "sessionId": "s1"},
		},
	}

	require.Len(t, tests, len(Channels))
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			d, err := Route(tt.channel, mustJSON(t, tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.room, d.Room)
			assert.Equal(t, tt.event, d.Event)

			var got map[string]any
			require.NoError(t, json.Unmarshal(d.Data, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoute_Rejects(t *testing.T) {
	_, err := Route("not_a_channel", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, err = Route(ChannelNewMatch, []byte(`{not json`))
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = Route(ChannelNewMatch, mustJSON(t, NewMatch{UserID: "nope", MatchedWith: uuid.NewString(), MatchID: uuid.NewString()}))
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = Route(ChannelNewMessage, mustJSON(t, NewMessage{ConversationID: uuid.NewString()}))
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = Route(ChannelNewMessage, []byte(`{"conversation_id":"`+uuid.NewString()+`","message":null}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func readFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.Send():
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return Frame{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send():
		t.Fatalf("unexpected frame %s", raw)
	default:
	}
}

func TestHub_RoomsAndExclude(t *testing.T) {
	hub := NewHub(4, logger.Discard())
	ann := hub.Register("ann")
	bob := hub.Register("bob")
	room := ConversationRoom("c1")

	hub.Join(ann, room)
	hub.Join(bob, room)
	assert.Equal(t, 2, hub.RoomSize(room))
	assert.True(t, hub.Online("ann"))

	n := hub.Deliver(Delivery{Room: room, Event: EventTypingStart, Data: json.RawMessage(`{}`), Exclude: "ann"})
	assert.Equal(t, 1, n)
	assert.Equal(t, EventTypingStart, readFrame(t, bob).Event)
	assertNoFrame(t, ann)

	hub.Deliver(Delivery{Room: UserRoom("ann"), Event: EventMatchNew, Data: json.RawMessage(`{}`)})
	assert.Equal(t, EventMatchNew, readFrame(t, ann).Event)
	assertNoFrame(t, bob)

	hub.Unregister(bob)
	hub.Unregister(bob)
	assert.Equal(t, 1, hub.RoomSize(room))
	_, open := <-bob.Send()
	assert.False(t, open)
}

func TestHub_NoBacklogForLateJoiners(t *testing.T) {
	hub := NewHub(4, logger.Discard())
	assert.Zero(t, hub.Deliver(Delivery{Room: UserRoom("ann"), Event: EventMatchNew, Data: json.RawMessage(`{}`)}))

	ann := hub.Register("ann")
	assertNoFrame(t, ann)
}

func TestHub_DropsWhenQueueFull(t *testing.T) {
	hub := NewHub(1, logger.Discard())
	ann := hub.Register("ann")
	d := Delivery{Room: UserRoom("ann"), Event: EventMatchNew, Data: json.RawMessage(`{}`)}

	assert.Equal(t, 1, hub.Deliver(d))
	assert.Equal(t, 0, hub.Deliver(d))
	assert.Equal(t, int64(1), hub.Dropped())
	readFrame(t, ann)
}

func TestRelay_DispatchDropsBadEvents(t *testing.T) {
	hub := NewHub(4, logger.Discard())
	r := New(hub, logger.Discard())
	id := uuid.NewString()
	c := hub.Register(id)

	r.Dispatch(context.Background(), "bogus", []byte(`{}`))
	r.Dispatch(context.Background(), ChannelNewGuest, []byte(`[]`))
	assertNoFrame(t, c)

	require.NoError(t, r.Publish(context.Background(), ChannelNewGuest, NewGuest{UserID: id, GuestID: uuid.NewString()}))
	assert.Equal(t, EventGuestNew, readFrame(t, c).Event)
}

func TestRedisBus_FansOutAcrossHubs(t *testing.T) {
	rc, _ := testutil.NewCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// two instances sharing one redis
	hubA, hubB := NewHub(4, logger.Discard()), NewHub(4, logger.Discard())
	busA := NewRedisBus(rc, "relay:test", logger.Discard())
	busB := NewRedisBus(rc, "relay:test", logger.Discard())
	go func() { _ = busA.Run(ctx, hubA) }()
	go func() { _ = busB.Run(ctx, hubB) }()
	<-busA.Ready()
	<-busB.Ready()

	id := uuid.NewString()
	onB := hubB.Register(id)

	relayA := New(hubA, logger.Discard()).WithBus(busA)
	relayA.Dispatch(ctx, ChannelNewMatch, mustJSON(t, NewMatch{UserID: id, MatchedWith: uuid.NewString(), MatchID: uuid.NewString()}))

	assert.Equal(t, EventMatchNew, readFrame(t, onB).Event)
}

func TestListener_ReconnectsAfterDelay(t *testing.T) {
	r := New(NewHub(4, logger.Discard()), logger.Discard())
	l := NewListener("", 10*time.Millisecond, r, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	l.session = func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("connection refused")
		}
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return attempts.Load() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPGNotifyPublisher_SkipsTriggerChannels(t *testing.T) {
	p := NewPGNotifyPublisher(testutil.NewDB(t))
	ctx := context.Background()

	for ch := range triggerBacked {
		assert.NoError(t, p.Publish(ctx, ch, map[string]string{}), ch)
	}
	assert.ErrorIs(t, p.Publish(ctx, "bogus", nil), ErrUnknownChannel)
}
