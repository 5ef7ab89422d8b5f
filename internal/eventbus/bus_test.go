package eventbus

import (
	"testing"
	"time"

	"github.com/meridian-video/camera-gateway/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBus(t *testing.T, queueSize int) *Bus {
	t.Helper()
	return New(queueSize, logging.NewLogger("test"))
}

func TestPublishDeliversToSubscribedTopic(t *testing.T) {
	bus := testBus(t, 8)
	ch := bus.Subscribe("session-1", []string{"camera_status_update"})

	bus.Publish("camera_status_update", map[string]interface{}{"device": "camera0"})

	select {
	case ev := <-ch:
		assert.Equal(t, "camera_status_update", ev.Topic)
		assert.Equal(t, "camera0", ev.Data["device"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishSkipsUninterestedSubscriber(t *testing.T) {
	bus := testBus(t, 8)
	ch := bus.Subscribe("session-1", []string{"recording_status_update"})

	bus.Publish("camera_status_update", map[string]interface{}{})

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event delivered: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFullQueueDropsOldestAndCounts(t *testing.T) {
	bus := testBus(t, 2)
	ch := bus.Subscribe("session-1", []string{"t"})

	bus.Publish("t", map[string]interface{}{"n": 1})
	bus.Publish("t", map[string]interface{}{"n": 2})
	bus.Publish("t", map[string]interface{}{"n": 3})

	first := <-ch
	assert.Equal(t, float64(2), toFloat(first.Data["n"]))
	second := <-ch
	assert.Equal(t, float64(3), toFloat(second.Data["n"]))

	stats := bus.Stats()
	require.Contains(t, stats.DroppedByClient, "session-1")
	assert.Equal(t, int64(1), stats.DroppedByClient["session-1"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := testBus(t, 4)
	ch := bus.Subscribe("session-1", []string{"t"})
	bus.Unsubscribe("session-1", []string{"t"})

	bus.Publish("t", map[string]interface{}{})

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event after unsubscribe: %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseRemovesSubscriberFromStats(t *testing.T) {
	bus := testBus(t, 4)
	bus.Subscribe("session-1", []string{"t"})
	require.Equal(t, 1, bus.Stats().TotalSubscribers)

	bus.Close("session-1")
	assert.Equal(t, 0, bus.Stats().TotalSubscribers)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return -1
	}
}
