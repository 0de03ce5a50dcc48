package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/testutil"
)

func TestBusFiltersByKind(t *testing.T) {
	b := NewBus(testutil.Logger())
	var all, only []domain.EventKind
	b.Subscribe(func(ev domain.Event) { all = append(all, ev.Kind) })
	b.Subscribe(func(ev domain.Event) { only = append(only, ev.Kind) }, domain.EventConnected)

	b.Publish(domain.Event{Kind: domain.EventConnected})
	b.Publish(domain.Event{Kind: domain.EventDisconnected})

	assert.Equal(t, []domain.EventKind{domain.EventConnected, domain.EventDisconnected}, all)
	assert.Equal(t, []domain.EventKind{domain.EventConnected}, only)
}

func TestBusSubscriptionClose(t *testing.T) {
	b := NewBus(testutil.Logger())
	n := 0
	sub := b.Subscribe(func(domain.Event) { n++ })
	b.Publish(domain.Event{Kind: domain.EventConnected})
	sub.Close()
	sub.Close()
	b.Publish(domain.Event{Kind: domain.EventConnected})
	assert.Equal(t, 1, n)
	assert.Zero(t, b.Len())
}

func TestBusPanicBecomesHandlerError(t *testing.T) {
	b := NewBus(testutil.Logger())
	var got []domain.Event
	b.Subscribe(func(domain.Event) { panic("kaboom") })
	b.Subscribe(func(ev domain.Event) { got = append(got, ev) })

	at := time.Unix(10, 0)
	b.Publish(domain.Event{Kind: domain.EventStateChange, At: at})

	assert.Len(t, got, 2)
	assert.Equal(t, domain.EventHandlerError, got[0].Kind)
	assert.Contains(t, got[0].Err, "kaboom")
	assert.Equal(t, at, got[0].At)
	assert.Equal(t, domain.EventStateChange, got[1].Kind, "later subscribers still receive the event")
}

func TestScopeClosesInReverseOrder(t *testing.T) {
	var order []int
	var s Scope
	for i := 1; i <= 3; i++ {
		s.Add(closeFunc(func() { order = append(order, i) }))
	}
	s.Close()
	assert.Equal(t, []int{3, 2, 1}, order)

	late := false
	s.Add(closeFunc(func() { late = true }))
	assert.True(t, late, "adding to a closed scope closes immediately")
}

func TestSerialRunsReentrantPostsInOrder(t *testing.T) {
	q := newSerial(testutil.Logger())
	var order []string
	q.post(func() {
		order = append(order, "a")
		q.post(func() { order = append(order, "c") })
		order = append(order, "b")
	})
	assert.Equal(t, []string{"a", "b", "c"}, order)

	q.post(func() { panic("task") })
	q.post(func() { order = append(order, "d") })
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}
