package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailfang/mailfang/internal/store"
)

func TestPublishNewMail_DeliversToSubscriber(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	rec := store.EmailListRecord{ID: "abc"}
	bus.PublishNewMail(rec)

	select {
	case msg := <-ch:
		assert.Equal(t, NewMail, msg.Event)
		require.NotNil(t, msg.Email)
		assert.Equal(t, "abc", msg.Email.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestPublishEmailDeleted_CarriesID(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	bus.PublishEmailDeleted("xyz")

	select {
	case msg := <-ch:
		assert.Equal(t, EmailDeleted, msg.Event)
		require.NotNil(t, msg.EmailID)
		assert.Equal(t, "xyz", *msg.EmailID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestPublish_NoSubscribersDoesNotBlock(t *testing.T) {
	bus := New()
	done := make(chan struct{})
	go func() {
		bus.PublishEmailDeleted("unwatched")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestPublish_DropsOldestWhenFull(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	// Fill the buffer, then push one more: the oldest must be dropped so
	// the send never blocks the publisher.
	for i := 0; i < subscriberBuffer+1; i++ {
		bus.PublishEmailDeleted("id")
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			assert.LessOrEqual(t, count, subscriberBuffer)
			return
		}
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}
