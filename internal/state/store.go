package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// PositionState is the durable per-symbol position bookkeeping that
// the stop lifecycle needs to survive a restart: the confirmed entry
// price, the last stop pushed to the exchange, and which partial
// take-profits have already fired.
type PositionState struct {
	EntryPrice *float64 `json:"entry_price"`
	LastStop   *float64 `json:"last_sl"`
	TookTP1    bool     `json:"took_tp1"`
	TookTP2    bool     `json:"took_tp2"`
}

type fileSchema struct {
	Symbols map[string]*PositionState `json:"symbols"`
	Limits  map[string]float64        `json:"limits"`
}

// Store is a write-through JSON state file. Every mutation rewrites
// the whole file atomically (temp file then rename), so a crash mid
// write never leaves a truncated file behind.
type Store struct {
	mu   sync.Mutex
	path string
	data fileSchema
}

// Open loads the state file at path, creating an empty store when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: fileSchema{
			Symbols: make(map[string]*PositionState),
			Limits:  make(map[string]float64),
		},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	if s.data.Symbols == nil {
		s.data.Symbols = make(map[string]*PositionState)
	}
	if s.data.Limits == nil {
		s.data.Limits = make(map[string]float64)
	}
	return s, nil
}

// Get returns a copy of the symbol's state. Unknown symbols return the
// zero state.
func (s *Store) Get(symbol string) PositionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.data.Symbols[symbol]; ok {
		return *ps
	}
	return PositionState{}
}

// SetEntry records the confirmed entry price for a symbol.
func (s *Store) SetEntry(symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(symbol).EntryPrice = &price
	return s.save()
}

// SetLastStop records the stop price last accepted by the exchange.
func (s *Store) SetLastStop(symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(symbol).LastStop = &price
	return s.save()
}

// SetTookTP1 latches (or resets) the first partial take-profit flag.
func (s *Store) SetTookTP1(symbol string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(symbol).TookTP1 = v
	return s.save()
}

// SetTookTP2 latches (or resets) the second partial take-profit flag.
func (s *Store) SetTookTP2(symbol string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(symbol).TookTP2 = v
	return s.save()
}

// ResetPosition replaces the symbol's state for a fresh entry: the new
// entry price is stored and the stop and partial flags are cleared.
func (s *Store) ResetPosition(symbol string, entryPrice float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Symbols[symbol] = &PositionState{EntryPrice: &entryPrice}
	return s.save()
}

// ClearPosition removes all stored state for a symbol after an exit.
func (s *Store) ClearPosition(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Symbols, symbol)
	return s.save()
}

// GetLimit returns a named numeric limit shared across restarts.
func (s *Store) GetLimit(key string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.Limits[key]
	return v, ok
}

// SetLimit stores a named numeric limit.
func (s *Store) SetLimit(key string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Limits[key] = v
	return s.save()
}

// ensure must be called with the lock held.
func (s *Store) ensure(symbol string) *PositionState {
	ps, ok := s.data.Symbols[symbol]
	if !ok {
		ps = &PositionState{}
		s.data.Symbols[symbol] = ps
	}
	return ps
}

// save must be called with the lock held.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating state dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
