// Package state holds read-only snapshots of the loop's view for outside
// readers. Only the control loop writes here; the API and telemetry read
// copies, never the live maps.
package state

import (
	"sync"
	"time"

	"perp-trader/internal/risk"
	"perp-trader/internal/signal"
	"perp-trader/pkg/exchanges/common"
)

// SignalView is the latest per-symbol aggregation result.
type SignalView struct {
	Symbol    string          `json:"symbol"`
	Direction string          `json:"direction"`
	Advice    string          `json:"advice"`
	Strength  signal.Strength `json:"strength"`
	Price     float64         `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is the shared snapshot of positions, margin, and signals.
type Store struct {
	mu        sync.RWMutex
	positions map[string]common.Position
	margin    risk.MarginState
	signals   map[string]SignalView
	tick      int64
	halted    bool
	haltedMsg string
}

// NewStore creates an empty snapshot store.
func NewStore() *Store {
	return &Store{
		positions: make(map[string]common.Position),
		signals:   make(map[string]SignalView),
	}
}

// ReplacePositions swaps in the authoritative position set wholesale.
func (s *Store) ReplacePositions(positions []common.Position) {
	next := make(map[string]common.Position, len(positions))
	for _, p := range positions {
		next[p.Symbol] = p
	}
	s.mu.Lock()
	s.positions = next
	s.mu.Unlock()
}

// Position returns the snapshot for one symbol (zero value when flat).
func (s *Store) Position(symbol string) common.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[symbol]
}

// Positions returns a copy of all open positions.
func (s *Store) Positions() []common.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

// SetMargin records the latest derived margin state.
func (s *Store) SetMargin(m risk.MarginState) {
	s.mu.Lock()
	s.margin = m
	s.mu.Unlock()
}

// Margin returns the latest derived margin state.
func (s *Store) Margin() risk.MarginState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.margin
}

// SetSignal records the latest aggregation result for a symbol.
func (s *Store) SetSignal(v SignalView) {
	s.mu.Lock()
	s.signals[v.Symbol] = v
	s.mu.Unlock()
}

// Signals returns a copy of the latest per-symbol signals.
func (s *Store) Signals() []SignalView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SignalView, 0, len(s.signals))
	for _, v := range s.signals {
		out = append(out, v)
	}
	return out
}

// SetTick records the completed tick counter.
func (s *Store) SetTick(n int64) {
	s.mu.Lock()
	s.tick = n
	s.mu.Unlock()
}

// Tick returns the completed tick counter.
func (s *Store) Tick() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// SetHalted marks the loop as fail-stopped.
func (s *Store) SetHalted(msg string) {
	s.mu.Lock()
	s.halted = true
	s.haltedMsg = msg
	s.mu.Unlock()
}

// Halted reports whether the loop fail-stopped, and why.
func (s *Store) Halted() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted, s.haltedMsg
}
