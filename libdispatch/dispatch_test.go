package libdispatch_test

import (
	"testing"

	"github.com/parley-dev/parley/libdispatch"
	"github.com/stretchr/testify/require"
)

func TestUnit_DeliversInRegistrationOrder(t *testing.T) {
	d := libdispatch.New()

	var order []int
	d.Subscribe("sessions.changed", func(string, any) { order = append(order, 1) })
	d.Subscribe("sessions.changed", func(string, any) { order = append(order, 2) })
	d.Subscribe("sessions.changed", func(string, any) { order = append(order, 3) })

	d.Publish("sessions.changed", nil)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestUnit_TopicIsolation(t *testing.T) {
	d := libdispatch.New()

	var got []string
	d.Subscribe("a", func(topic string, _ any) { got = append(got, topic) })
	d.Subscribe("b", func(topic string, _ any) { got = append(got, topic) })

	d.Publish("a", nil)
	d.Publish("a", nil)
	require.Equal(t, []string{"a", "a"}, got)
}

func TestUnit_UnsubscribeStopsDelivery(t *testing.T) {
	d := libdispatch.New()

	calls := 0
	sub := d.Subscribe("history.changed", func(string, any) { calls++ })
	keep := 0
	d.Subscribe("history.changed", func(string, any) { keep++ })

	d.Publish("history.changed", nil)
	sub.Unsubscribe()
	d.Publish("history.changed", nil)

	require.Equal(t, 1, calls)
	require.Equal(t, 2, keep)
}

func TestUnit_PayloadPassedThrough(t *testing.T) {
	d := libdispatch.New()

	var got any
	d.Subscribe("state.changed", func(_ string, payload any) { got = payload })
	d.Publish("state.changed", "s1")
	require.Equal(t, "s1", got)
}

func TestUnit_UnsubscribeDuringPublish(t *testing.T) {
	d := libdispatch.New()

	var sub libdispatch.Subscription
	first := 0
	sub = d.Subscribe("t", func(string, any) {
		first++
		sub.Unsubscribe()
	})
	second := 0
	d.Subscribe("t", func(string, any) { second++ })

	d.Publish("t", nil)
	d.Publish("t", nil)

	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}
