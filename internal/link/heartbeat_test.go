package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simlink/internal/domain"
	"github.com/alanyoungcy/simlink/internal/testutil"
)

func TestThresholdsGrade(t *testing.T) {
	th := Thresholds{Good: 250 * time.Millisecond, Degraded: 750 * time.Millisecond}
	tests := []struct {
		latency time.Duration
		want    domain.Quality
	}{
		{100 * time.Millisecond, domain.QualityGood},
		{250 * time.Millisecond, domain.QualityGood},
		{500 * time.Millisecond, domain.QualityDegraded},
		{750 * time.Millisecond, domain.QualityDegraded},
		{900 * time.Millisecond, domain.QualityPoor},
		{-1, domain.QualityUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Grade(tt.latency), "latency %s", tt.latency)
	}
}

type hbProbe struct {
	clock    *testutil.FakeClock
	hb       *Heartbeat
	sent     []int64
	timeouts []int
	dead     int
}

func newHBProbe() *hbProbe {
	p := &hbProbe{clock: testutil.NewFakeClock(time.UnixMilli(1_700_000_000_000))}
	p.hb = NewHeartbeat(HeartbeatOptions{Interval: 30 * time.Second, Timeout: 10 * time.Second, DeadAfter: 2},
		p.clock, immediate,
		func(ts int64) bool { p.sent = append(p.sent, ts); return true },
		func(m int) { p.timeouts = append(p.timeouts, m) },
		func() { p.dead++ },
	)
	return p
}

func TestHeartbeatAckMeasuresLatency(t *testing.T) {
	p := newHBProbe()
	p.hb.Start()
	p.clock.Advance(30 * time.Second)
	require.Len(t, p.sent, 1)

	p.clock.Advance(120 * time.Millisecond)
	latency, ok := p.hb.Ack(p.sent[0])
	require.True(t, ok)
	assert.Equal(t, 120*time.Millisecond, latency)

	_, ok = p.hb.Ack(p.sent[0])
	assert.False(t, ok, "ack is matched once")

	p.clock.Advance(30 * time.Second)
	assert.Len(t, p.sent, 2, "next probe one interval after the previous one")
	assert.Empty(t, p.timeouts)
}

func TestHeartbeatIgnoresForeignAck(t *testing.T) {
	p := newHBProbe()
	p.hb.Start()
	p.clock.Advance(30 * time.Second)

	_, ok := p.hb.Ack(p.sent[0] - 5)
	assert.False(t, ok)
}

func TestHeartbeatTimeoutThenDead(t *testing.T) {
	p := newHBProbe()
	p.hb.Start()
	p.clock.Advance(30 * time.Second)

	p.clock.Advance(10 * time.Second)
	assert.Equal(t, []int{1}, p.timeouts)
	assert.Len(t, p.sent, 2, "a missed probe is re-sent at once")
	assert.Zero(t, p.dead)

	p.clock.Advance(10 * time.Second)
	assert.Equal(t, 1, p.dead, "second consecutive miss is a dead connection")
	assert.False(t, p.hb.Running())
	assert.Zero(t, p.clock.Pending())
}

func TestHeartbeatRecoversAfterSingleMiss(t *testing.T) {
	p := newHBProbe()
	p.hb.Start()
	p.clock.Advance(40 * time.Second)
	require.Len(t, p.sent, 2)

	_, ok := p.hb.Ack(p.sent[1])
	require.True(t, ok)
	p.clock.Advance(35 * time.Second)
	assert.Len(t, p.sent, 3)
	assert.Zero(t, p.dead)
	assert.Equal(t, []int{1}, p.timeouts)
}

func TestHeartbeatStopCancelsTimers(t *testing.T) {
	p := newHBProbe()
	p.hb.Start()
	p.clock.Advance(30 * time.Second)
	p.hb.Stop()

	p.clock.Advance(time.Hour)
	assert.Empty(t, p.timeouts)
	assert.Zero(t, p.dead)
	assert.Len(t, p.sent, 1)
}
