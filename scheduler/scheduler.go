// Package scheduler drives one board's periodic request to its transport:
// a sensor-query frame for instrumentation boards, or a fresh snapshot of
// desired_state for actuator boards. One Scheduler exists per configured
// board and runs independently of the others.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"groundctl/board"
	"groundctl/timekeeper"
	"groundctl/transport"
)

// Scheduler paces a single board's transport requests, starting at its
// configured polling_interval and retuned to idle_interval/active_interval
// by SetIdle/SetActive as the state machine moves between Idle and
// Hotfire. This applies to sensor and actuator boards alike; a zero
// interval leaves the current pace in place.
type Scheduler struct {
	board  *board.Board
	trans  transport.Manager
	tk     *timekeeper.TimeKeeper

	mu       sync.Mutex
	interval time.Duration
}

// New constructs a Scheduler for b, initially paced at its polling_interval.
func New(b *board.Board, tm transport.Manager) *Scheduler {
	s := &Scheduler{
		board:    b,
		trans:    tm,
		interval: b.Config.PollingInterval,
	}
	s.tk = timekeeper.New(b.Name+"-scheduler", s.interval, time.Minute)
	return s
}

// SetIdle retunes the scheduler to the board's idle_interval. A no-op if
// idle_interval is unconfigured (zero), leaving the current pace in place.
func (s *Scheduler) SetIdle() { s.retune(s.board.Config.IdleInterval) }

// SetActive retunes the scheduler to the board's active_interval, used
// while the state machine runs Hotfire.
func (s *Scheduler) SetActive() { s.retune(s.board.Config.ActiveInterval) }

func (s *Scheduler) retune(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	s.tk.SetInterval(d)
}

// Run paces the board's request cycle until ctx is cancelled. Transport
// errors are logged and never stop the loop; a board that's temporarily
// unreachable should keep being polled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.tk.CycleStart()
		frame := s.buildFrame()
		if err := s.trans.SendReceive(ctx, frame); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("board", s.board.Name).Msg("scheduler send_receive error")
		}
		if s.tk.ShouldDebugLog() {
			log.Debug().Str("board", s.board.Name).Int64("cycle", s.tk.GetCycle()).Msg("scheduler tick")
		}
		s.tk.CycleEnd(ctx)
	}
}

func (s *Scheduler) buildFrame() any {
	if s.board.Config.IsActuator {
		return actuatorFrame(s.board)
	}
	return sensorFrame(s.board)
}

// actuatorFrame is a fresh copy of the board's desired_state, taken at
// send time rather than frozen once at construction, plus timestamp: 0
// (the firmware's echo-time placeholder, overwritten on response).
func actuatorFrame(b *board.Board) map[string]any {
	frame := stateToFrame(b.DesiredState())
	frame["timestamp"] = 0
	return frame
}

// queryItem is one channel's entry in a sensor-query frame: its channel
// number, plus its last-known value when the hw item carries one (used by
// firmware echo tests to cross-check readings).
type queryItem struct {
	Channel int      `json:"channel"`
	Value   *float64 `json:"value,omitempty"`
}

// sensorFrame lists {channel, value?} for every configured item on a
// non-actuator board.
func sensorFrame(b *board.Board) map[string]any {
	st := b.State()
	frame := map[string]any{}

	if len(st.PTS) > 0 {
		m := make(map[string]queryItem, len(st.PTS))
		for name, item := range st.PTS {
			v := item.Value
			m[name] = queryItem{Channel: item.Channel, Value: &v}
		}
		frame[string(board.PTS)] = m
	}
	if len(st.TCS) > 0 {
		m := make(map[string]queryItem, len(st.TCS))
		for name, item := range st.TCS {
			v := item.Value
			m[name] = queryItem{Channel: item.Channel, Value: &v}
		}
		frame[string(board.TCS)] = m
	}
	if len(st.LoadCells) > 0 {
		m := make(map[string]queryItem, len(st.LoadCells))
		for name, item := range st.LoadCells {
			v := item.Value
			m[name] = queryItem{Channel: item.Channel, Value: &v}
		}
		frame[string(board.LoadCells)] = m
	}
	if len(st.IMUs) > 0 {
		m := make(map[string]queryItem, len(st.IMUs))
		for name, item := range st.IMUs {
			m[name] = queryItem{Channel: item.Channel}
		}
		frame[string(board.IMUs)] = m
	}
	if len(st.GNSS) > 0 {
		m := make(map[string]queryItem, len(st.GNSS))
		for name, item := range st.GNSS {
			m[name] = queryItem{Channel: item.Channel}
		}
		frame[string(board.GNSS)] = m
	}
	return frame
}

// stateToFrame converts a board.State snapshot into the generic
// map[string]any shape transport.injectSendID expects to marshal, keyed by
// the same hw-type strings as the wire protocol.
func stateToFrame(st board.State) map[string]any {
	frame := map[string]any{}
	if len(st.Servos) > 0 {
		frame[string(board.Servos)] = st.Servos
	}
	if len(st.Solenoids) > 0 {
		frame[string(board.Solenoids)] = st.Solenoids
	}
	if len(st.Pyros) > 0 {
		frame[string(board.Pyros)] = st.Pyros
	}
	if len(st.PTS) > 0 {
		frame[string(board.PTS)] = st.PTS
	}
	if len(st.TCS) > 0 {
		frame[string(board.TCS)] = st.TCS
	}
	if len(st.LoadCells) > 0 {
		frame[string(board.LoadCells)] = st.LoadCells
	}
	if len(st.IMUs) > 0 {
		frame[string(board.IMUs)] = st.IMUs
	}
	if len(st.GNSS) > 0 {
		frame[string(board.GNSS)] = st.GNSS
	}
	return frame
}
