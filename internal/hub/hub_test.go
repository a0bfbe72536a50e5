package hub_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sightlinehq/sightline/internal/hub"
)

func TestMain(m *testing.M) {
	// verify no goroutine leaks across tests in this package
	defer goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func recvOne(t *testing.T, sub *hub.Subscriber) hub.Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return hub.Event{}
	}
}

func TestPublishFanOut(t *testing.T) {
	h := hub.New(nil)
	a := h.Subscribe(hub.TopicReports)
	b := h.Subscribe(hub.TopicReports)
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(hub.TopicReports, hub.Event{Name: hub.EventReportProcessed, Data: "x"})

	assert.Equal(t, "x", recvOne(t, a).Data)
	assert.Equal(t, "x", recvOne(t, b).Data)
}

func TestTopicFiltering(t *testing.T) {
	h := hub.New(nil)
	reports := h.Subscribe(hub.TopicReports)
	all := h.Subscribe()
	defer h.Unsubscribe(reports)
	defer h.Unsubscribe(all)

	h.Publish(hub.TopicSightings, hub.Event{Name: hub.EventReceiveLocation})

	// the topic-scoped subscriber sees nothing
	select {
	case ev := <-reports.C():
		t.Fatalf("unexpected event on reports subscriber: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// a subscriber with no topic filter sees every topic
	assert.Equal(t, hub.EventReceiveLocation, recvOne(t, all).Name)
}

func TestLateSubscriberMissesEarlierPublishes(t *testing.T) {
	h := hub.New(nil)
	h.Publish(hub.TopicReports, hub.Event{Name: "early"})

	late := h.Subscribe(hub.TopicReports)
	defer h.Unsubscribe(late)

	select {
	case ev := <-late.C():
		t.Fatalf("late subscriber received replayed event: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPerTopicOrderPreserved(t *testing.T) {
	h := hub.New(nil)
	sub := h.Subscribe(hub.TopicReports)
	defer h.Unsubscribe(sub)

	for i := 0; i < 10; i++ {
		h.Publish(hub.TopicReports, hub.Event{Name: fmt.Sprintf("ev-%d", i)})
	}
	for i := 0; i < 10; i++ {
		require.Equal(t, fmt.Sprintf("ev-%d", i), recvOne(t, sub).Name)
	}
}

func TestUnsubscribeIsIdempotentAndCleansUp(t *testing.T) {
	h := hub.New(nil)
	sub := h.Subscribe(hub.TopicReports)
	require.Equal(t, 1, h.SubscriberCount())

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.SubscriberCount())

	// publishing after removal must not panic or deliver
	h.Publish(hub.TopicReports, hub.Event{Name: "after"})
	_, open := <-sub.C()
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	h := hub.New(nil)
	sub := h.Subscribe(hub.TopicReports)
	defer h.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// push well past the buffer without draining
		for i := 0; i < 200; i++ {
			h.Publish(hub.TopicReports, hub.Event{Name: fmt.Sprintf("ev-%d", i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
