package socket

import "time"

type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionState is owned by the run loop. Generation increases on every
// dial and on stop; events carrying an older generation are ignored.
type ConnectionState struct {
	Phase         Phase
	Connected     bool
	Attempt       int
	LastHeartbeat time.Time
	Generation    uint64
}

// Policy controls reconnect backoff.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Delay is min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		if d >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

type Event interface{ isEvent() }

type EventStart struct{}

type EventStop struct{}

// EventConnected carries the new connection. Transition ignores Conn; the
// run loop closes it when the event turns out to be stale.
type EventConnected struct {
	Gen  uint64
	At   time.Time
	Conn Conn
}

type EventDialFailed struct {
	Gen uint64
	Err error
}

type EventClosed struct {
	Gen uint64
	Err error
}

type EventReconnectTimer struct{ Gen uint64 }

type EventHeartbeat struct{ At time.Time }

type EventHeartbeatTimeout struct{ Gen uint64 }

func (EventStart) isEvent()            {}
func (EventStop) isEvent()             {}
func (EventConnected) isEvent()        {}
func (EventDialFailed) isEvent()       {}
func (EventClosed) isEvent()           {}
func (EventReconnectTimer) isEvent()   {}
func (EventHeartbeat) isEvent()        {}
func (EventHeartbeatTimeout) isEvent() {}

type Effect interface{ isEffect() }

type EffectDial struct{ Gen uint64 }

type EffectScheduleReconnect struct {
	Gen   uint64
	Delay time.Duration
}

type EffectReplaySubscriptions struct{}

type EffectSendHeartbeat struct{}

type EffectCloseConn struct{}

type EffectFailed struct{}

func (EffectDial) isEffect()                {}
func (EffectScheduleReconnect) isEffect()   {}
func (EffectReplaySubscriptions) isEffect() {}
func (EffectSendHeartbeat) isEffect()       {}
func (EffectCloseConn) isEffect()           {}
func (EffectFailed) isEffect()              {}

// Transition is the whole connection lifecycle. It has no side effects;
// the caller executes the returned effects in order.
func Transition(s ConnectionState, ev Event, p Policy) (ConnectionState, []Effect) {
	switch e := ev.(type) {
	case EventStart:
		if s.Phase != PhaseDisconnected {
			return s, nil
		}
		s.Generation++
		s.Phase = PhaseConnecting
		return s, []Effect{EffectDial{Gen: s.Generation}}

	case EventStop:
		wasConnected := s.Connected
		s.Generation++
		s.Phase = PhaseDisconnected
		s.Connected = false
		if wasConnected {
			return s, []Effect{EffectCloseConn{}}
		}
		return s, nil

	case EventConnected:
		if s.Phase != PhaseConnecting || e.Gen != s.Generation {
			return s, nil
		}
		s.Phase = PhaseConnected
		s.Connected = true
		s.Attempt = 0
		s.LastHeartbeat = e.At
		return s, []Effect{EffectReplaySubscriptions{}}

	case EventDialFailed:
		if s.Phase != PhaseConnecting || e.Gen != s.Generation {
			return s, nil
		}
		return lost(s, p, nil)

	case EventClosed:
		if s.Phase != PhaseConnected || e.Gen != s.Generation {
			return s, nil
		}
		return lost(s, p, []Effect{EffectCloseConn{}})

	case EventHeartbeatTimeout:
		if s.Phase != PhaseConnected || e.Gen != s.Generation {
			return s, nil
		}
		return lost(s, p, []Effect{EffectCloseConn{}})

	case EventReconnectTimer:
		if s.Phase != PhaseReconnecting || e.Gen != s.Generation {
			return s, nil
		}
		s.Generation++
		s.Phase = PhaseConnecting
		return s, []Effect{EffectDial{Gen: s.Generation}}

	case EventHeartbeat:
		if s.Phase != PhaseConnected {
			return s, nil
		}
		s.LastHeartbeat = e.At
		return s, []Effect{EffectSendHeartbeat{}}
	}
	return s, nil
}

func lost(s ConnectionState, p Policy, effects []Effect) (ConnectionState, []Effect) {
	s.Connected = false
	if s.Attempt >= p.MaxAttempts {
		s.Phase = PhaseFailed
		return s, append(effects, EffectFailed{})
	}
	delay := p.Delay(s.Attempt)
	s.Attempt++
	s.Phase = PhaseReconnecting
	return s, append(effects, EffectScheduleReconnect{Gen: s.Generation, Delay: delay})
}
