package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/simlink/internal/domain"
)

var testGrade = Thresholds{Good: 250 * time.Millisecond, Degraded: 750 * time.Millisecond}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		transport   domain.Status
		recovering  bool
		deactivated bool
		want        domain.Status
	}{
		{domain.StatusDisconnected, false, false, domain.StatusDisconnected},
		{domain.StatusConnecting, false, false, domain.StatusConnecting},
		{domain.StatusConnected, false, false, domain.StatusConnected},
		{domain.StatusConnecting, true, false, domain.StatusRecovering},
		{domain.StatusDisconnected, true, false, domain.StatusRecovering},
		{domain.StatusConnected, true, true, domain.StatusDisconnected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OverallStatus(tt.transport, tt.recovering, tt.deactivated))
	}
}

func TestStateMachineQualityOnlyWhileConnected(t *testing.T) {
	m := NewStateMachine(testGrade)
	assert.Equal(t, domain.QualityUnknown, m.Connection().Quality)
	assert.Equal(t, int64(-1), m.Connection().HeartbeatLatencyMs)

	conn, changed := m.Update(func(in *Inputs) {
		in.Transport = domain.StatusConnected
		in.Latency = 100 * time.Millisecond
	})
	assert.True(t, changed)
	assert.Equal(t, domain.StatusConnected, conn.Status)
	assert.Equal(t, domain.QualityGood, conn.Quality)
	assert.Equal(t, int64(100), conn.HeartbeatLatencyMs)

	conn, _ = m.Update(func(in *Inputs) { in.Recovering = true })
	assert.Equal(t, domain.StatusRecovering, conn.Status)
	assert.Equal(t, domain.QualityUnknown, conn.Quality)
}

func TestStateMachineReportsUnchanged(t *testing.T) {
	m := NewStateMachine(testGrade)
	_, changed := m.Update(func(in *Inputs) { in.Transport = domain.StatusDisconnected })
	assert.False(t, changed)
}
