package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	b := New(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish([]byte("hello"))

	assert.Equal(t, []byte("hello"), <-s1.Chunks())
	assert.Equal(t, []byte("hello"), <-s2.Chunks())
}

func TestBus_LateSubscriberMissesEarlierChunks(t *testing.T) {
	b := New(4)
	b.Publish([]byte("before"))

	s := b.Subscribe()
	b.Publish([]byte("after"))

	require.Equal(t, []byte("after"), <-s.Chunks())
}

func TestBus_FullSubscriberEvictsOldest(t *testing.T) {
	b := New(2)
	s := b.Subscribe()

	b.Publish([]byte("a"))
	b.Publish([]byte("b"))
	b.Publish([]byte("c")) // buffer capacity 2: "a" evicted

	assert.Equal(t, []byte("b"), <-s.Chunks())
	assert.Equal(t, []byte("c"), <-s.Chunks())
	assert.Equal(t, uint64(1), s.Lagged())
}

func TestBus_CloseEndsSubscriberRange(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	b.Publish([]byte("x"))
	b.Close()

	var got [][]byte
	done := make(chan struct{})
	go func() {
		for chunk := range s.Chunks() {
			got = append(got, chunk)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber channel never closed")
	}
	require.Len(t, got, 1)
	assert.Equal(t, []byte("x"), got[0])
}

func TestBus_SubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := New(4)
	b.Close()
	s := b.Subscribe()

	_, ok := <-s.Chunks()
	assert.False(t, ok)
}

func TestBus_PublishAfterCloseIsNoop(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	b.Close()

	assert.NotPanics(t, func() { b.Publish([]byte("ignored")) })
	_, ok := <-s.Chunks()
	assert.False(t, ok)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	b.Unsubscribe(s)

	b.Publish([]byte("x"))

	select {
	case _, ok := <-s.Chunks():
		if ok {
			t.Fatal("unsubscribed subscriber should not receive further chunks")
		}
	case <-time.After(50 * time.Millisecond):
	}
}
