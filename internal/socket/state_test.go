package socket

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testPolicy = Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 3}

func TestPolicyDelay(t *testing.T) {
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30, 30}
	for attempt, w := range want {
		assert.Equal(t, w*time.Second, testPolicy.Delay(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, 30*time.Second, testPolicy.Delay(200))
}

func TestTransition(t *testing.T) {
	now := time.Now()
	connected := ConnectionState{Phase: PhaseConnected, Connected: true, Generation: 4, LastHeartbeat: now}
	reconnecting := ConnectionState{Phase: PhaseReconnecting, Attempt: 2, Generation: 4}

	testCases := []struct {
		name        string
		state       ConnectionState
		event       Event
		wantState   ConnectionState
		wantEffects []Effect
	}{
		{
			name:        "start dials",
			state:       ConnectionState{},
			event:       EventStart{},
			wantState:   ConnectionState{Phase: PhaseConnecting, Generation: 1},
			wantEffects: []Effect{EffectDial{Gen: 1}},
		},
		{
			name:      "start while connected is ignored",
			state:     connected,
			event:     EventStart{},
			wantState: connected,
		},
		{
			name:        "connect resets attempt and replays",
			state:       ConnectionState{Phase: PhaseConnecting, Attempt: 3, Generation: 5},
			event:       EventConnected{Gen: 5, At: now},
			wantState:   ConnectionState{Phase: PhaseConnected, Connected: true, Generation: 5, LastHeartbeat: now},
			wantEffects: []Effect{EffectReplaySubscriptions{}},
		},
		{
			name:      "stale connect is ignored",
			state:     ConnectionState{Phase: PhaseConnecting, Generation: 5},
			event:     EventConnected{Gen: 4, At: now},
			wantState: ConnectionState{Phase: PhaseConnecting, Generation: 5},
		},
		{
			name:        "dial failure schedules backoff",
			state:       ConnectionState{Phase: PhaseConnecting, Attempt: 2, Generation: 7},
			event:       EventDialFailed{Gen: 7, Err: errors.New("refused")},
			wantState:   ConnectionState{Phase: PhaseReconnecting, Attempt: 3, Generation: 7},
			wantEffects: []Effect{EffectScheduleReconnect{Gen: 7, Delay: 4 * time.Second}},
		},
		{
			name:        "dial failure after max attempts fails",
			state:       ConnectionState{Phase: PhaseConnecting, Attempt: 3, Generation: 7},
			event:       EventDialFailed{Gen: 7},
			wantState:   ConnectionState{Phase: PhaseFailed, Attempt: 3, Generation: 7},
			wantEffects: []Effect{EffectFailed{}},
		},
		{
			name:        "connection loss closes and reconnects",
			state:       connected,
			event:       EventClosed{Gen: 4},
			wantState:   ConnectionState{Phase: PhaseReconnecting, Attempt: 1, Generation: 4, LastHeartbeat: now},
			wantEffects: []Effect{EffectCloseConn{}, EffectScheduleReconnect{Gen: 4, Delay: time.Second}},
		},
		{
			name:      "close from an older connection is ignored",
			state:     connected,
			event:     EventClosed{Gen: 3},
			wantState: connected,
		},
		{
			name:        "heartbeat timeout is a loss",
			state:       connected,
			event:       EventHeartbeatTimeout{Gen: 4},
			wantState:   ConnectionState{Phase: PhaseReconnecting, Attempt: 1, Generation: 4, LastHeartbeat: now},
			wantEffects: []Effect{EffectCloseConn{}, EffectScheduleReconnect{Gen: 4, Delay: time.Second}},
		},
		{
			name:        "reconnect timer dials with a new generation",
			state:       reconnecting,
			event:       EventReconnectTimer{Gen: 4},
			wantState:   ConnectionState{Phase: PhaseConnecting, Attempt: 2, Generation: 5},
			wantEffects: []Effect{EffectDial{Gen: 5}},
		},
		{
			name:      "stale reconnect timer is a no-op",
			state:     reconnecting,
			event:     EventReconnectTimer{Gen: 3},
			wantState: reconnecting,
		},
		{
			name:      "timer after failure is a no-op",
			state:     ConnectionState{Phase: PhaseFailed, Attempt: 3, Generation: 4},
			event:     EventReconnectTimer{Gen: 4},
			wantState: ConnectionState{Phase: PhaseFailed, Attempt: 3, Generation: 4},
		},
		{
			name:        "inbound heartbeat records time and replies",
			state:       connected,
			event:       EventHeartbeat{At: now.Add(time.Minute)},
			wantState:   ConnectionState{Phase: PhaseConnected, Connected: true, Generation: 4, LastHeartbeat: now.Add(time.Minute)},
			wantEffects: []Effect{EffectSendHeartbeat{}},
		},
		{
			name:      "heartbeat while reconnecting is ignored",
			state:     reconnecting,
			event:     EventHeartbeat{At: now},
			wantState: reconnecting,
		},
		{
			name:        "stop closes and invalidates timers",
			state:       connected,
			event:       EventStop{},
			wantState:   ConnectionState{Phase: PhaseDisconnected, Generation: 5, LastHeartbeat: now},
			wantEffects: []Effect{EffectCloseConn{}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, effects := Transition(tt.state, tt.event, testPolicy)
			assert.Equal(t, tt.wantState, got)
			assert.Equal(t, tt.wantEffects, effects)
		})
	}
}

func TestTransitionStopThenStaleTimer(t *testing.T) {
	s := ConnectionState{Phase: PhaseReconnecting, Attempt: 1, Generation: 2}
	s, _ = Transition(s, EventStop{}, testPolicy)
	s, effects := Transition(s, EventReconnectTimer{Gen: 2}, testPolicy)
	assert.Equal(t, PhaseDisconnected, s.Phase)
	assert.Empty(t, effects)
}
