package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"electrafusion-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHub() *Hub {
	h := NewHub()
	h.now = func() time.Time { return fixedNow }
	return h
}

func samplePoll() *models.Poll {
	return &models.Poll{
		ID:         "poll-1",
		Title:      "Lunch",
		Status:     models.StatusActive,
		StartDate:  fixedNow.Add(-time.Hour),
		TotalVotes: 4,
		Options: []models.PollOption{
			{ID: "a", Text: "Pizza", Votes: 1},
			{ID: "b", Text: "Tacos", Votes: 3},
		},
	}
}

type recordingRelay struct {
	mu    sync.Mutex
	polls []string
	err   error
}

func (r *recordingRelay) Publish(ctx context.Context, pollID string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, pollID)
	return r.err
}

func receive(t *testing.T, s *Subscriber) []byte {
	t.Helper()
	select {
	case msg, ok := <-s.Messages():
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHubPollUpdatedDeliversResults(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("poll-1")
	other := h.Subscribe("poll-2")

	h.PollUpdated(samplePoll())

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, sub), &msg))
	assert.Equal(t, "results", msg.Type)
	assert.Equal(t, "poll-1", msg.PollID)
	require.NotNil(t, msg.Data)
	assert.Equal(t, int64(4), msg.Data.TotalVotes)
	require.Len(t, msg.Data.Options, 2)
	assert.Equal(t, int64(75), msg.Data.Options[1].Percentage)

	select {
	case <-other.Messages():
		t.Fatal("subscriber of another poll received an update")
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("poll-1")
	assert.Equal(t, 1, h.SubscriberCount("poll-1"))

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.SubscriberCount("poll-1"))

	_, ok := <-sub.Messages()
	assert.False(t, ok)

	// 没有订阅者时广播不应阻塞
	h.PollUpdated(samplePoll())
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h := newTestHub()
	slow := h.Subscribe("poll-1")
	fast := h.Subscribe("poll-1")

	for i := 0; i < cap(slow.send); i++ {
		h.Broadcast("poll-1", []byte("x"))
		<-fast.Messages()
	}
	h.Broadcast("poll-1", []byte("overflow"))

	assert.Equal(t, 1, h.SubscriberCount("poll-1"))
	assert.Equal(t, "overflow", string(receive(t, fast)))

	drained := 0
	for range slow.Messages() {
		drained++
	}
	assert.Equal(t, cap(slow.send), drained)
}

func TestHubRelay(t *testing.T) {
	h := newTestHub()
	relay := &recordingRelay{err: errors.New("redis down")}
	h.SetRelay(relay)
	sub := h.Subscribe("poll-1")

	h.PollUpdated(samplePoll())

	// 转发失败不影响本地推送
	receive(t, sub)
	assert.Equal(t, []string{"poll-1"}, relay.polls)
}

func TestBridgeIgnoresOwnMessages(t *testing.T) {
	h := newTestHub()
	b := NewRedisBridge(nil, h)
	sub := h.Subscribe("poll-1")

	own, _ := json.Marshal(envelope{Origin: b.instance, PollID: "poll-1", Payload: json.RawMessage(`{"type":"results"}`)})
	b.handle(own)
	select {
	case <-sub.Messages():
		t.Fatal("own message was rebroadcast")
	default:
	}

	foreign, _ := json.Marshal(envelope{Origin: "other", PollID: "poll-1", Payload: json.RawMessage(`{"type":"results"}`)})
	b.handle(foreign)
	assert.JSONEq(t, `{"type":"results"}`, string(receive(t, sub)))

	b.handle([]byte("not json"))
}

func pollWithTotal(total int64) *models.Poll {
	p := samplePoll()
	p.TotalVotes = total
	return p
}

func TestHubDropsOutOfOrderSnapshots(t *testing.T) {
	h := newTestHub()
	relay := &recordingRelay{}
	h.SetRelay(relay)
	sub := h.Subscribe("poll-1")

	// 第二张选票的快照先于第一张到达
	h.PollUpdated(pollWithTotal(2))
	h.PollUpdated(pollWithTotal(1))
	h.PollUpdated(pollWithTotal(2))

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, sub), &msg))
	assert.Equal(t, int64(2), msg.Data.TotalVotes)
	select {
	case stale := <-sub.Messages():
		t.Fatalf("stale snapshot delivered: %s", stale)
	default:
	}
	assert.Equal(t, []string{"poll-1"}, relay.polls)

	h.PollUpdated(pollWithTotal(3))
	require.NoError(t, json.Unmarshal(receive(t, sub), &msg))
	assert.Equal(t, int64(3), msg.Data.TotalVotes)
}

func TestBridgeDropsOutOfOrderSnapshots(t *testing.T) {
	h := newTestHub()
	b := NewRedisBridge(nil, h)
	sub := h.Subscribe("poll-1")

	newer, err := h.Encode(pollWithTotal(5))
	require.NoError(t, err)
	older, err := h.Encode(pollWithTotal(4))
	require.NoError(t, err)

	for _, payload := range [][]byte{newer, older} {
		data, _ := json.Marshal(envelope{Origin: "other", PollID: "poll-1", Payload: payload})
		b.handle(data)
	}

	var msg Message
	require.NoError(t, json.Unmarshal(receive(t, sub), &msg))
	assert.Equal(t, int64(5), msg.Data.TotalVotes)
	select {
	case <-sub.Messages():
		t.Fatal("older remote snapshot delivered")
	default:
	}
}
