package state

import (
	"sync"
	"time"

	"vigil/internal/model"
)

// StreamState is the rolling per-stream record. Only the orchestrator
// mutates it; the store's lock exists for API readers.
type StreamState struct {
	Stream        model.StreamDescriptor
	Persons       []model.PersonObservation
	LastStatFlush time.Time
	ActiveAlerts  map[string]time.Time
}

// Snapshot is a read-only view of one stream for the API.
type Snapshot struct {
	Stream        model.StreamDescriptor `json:"stream"`
	PersonCount   int                    `json:"person_count"`
	LastStatFlush time.Time              `json:"last_stat_flush"`
	ActiveAlerts  map[string]time.Time   `json:"active_alerts,omitempty"`
	LastStat      *model.StreamStat      `json:"last_stat,omitempty"`
}

// Store holds exactly one StreamState per enabled stream for the process
// lifetime, plus the most recent flushed stat per stream.
type Store struct {
	mu        sync.RWMutex
	states    map[string]*StreamState
	lastStats map[string]model.StreamStat
}

func NewStore(streams []model.StreamDescriptor, now time.Time) *Store {
	s := &Store{
		states:    make(map[string]*StreamState, len(streams)),
		lastStats: make(map[string]model.StreamStat),
	}
	for _, stream := range streams {
		if !stream.Enabled {
			continue
		}
		s.states[stream.Name] = &StreamState{
			Stream:        stream,
			LastStatFlush: now,
			ActiveAlerts:  make(map[string]time.Time),
		}
	}
	return s
}

func (s *Store) Get(name string) (*StreamState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[name]
	return st, ok
}

// SetPersons replaces a stream's observation list wholesale.
func (s *Store) SetPersons(name string, persons []model.PersonObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.Persons = persons
	}
}

func (s *Store) MarkFlushed(name string, at time.Time, stat model.StreamStat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.LastStatFlush = at
	}
	s.lastStats[name] = stat
}

func (s *Store) MarkAlert(name, eventType string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[name]; ok {
		st.ActiveAlerts[eventType] = at
	}
}

func (s *Store) LastStat(name string) (model.StreamStat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.lastStats[name]
	return stat, ok
}

// Snapshots returns copies of every stream state for the API.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.states))
	for name, st := range s.states {
		snap := Snapshot{
			Stream:        st.Stream,
			PersonCount:   len(st.Persons),
			LastStatFlush: st.LastStatFlush,
		}
		if len(st.ActiveAlerts) > 0 {
			snap.ActiveAlerts = make(map[string]time.Time, len(st.ActiveAlerts))
			for k, v := range st.ActiveAlerts {
				snap.ActiveAlerts[k] = v
			}
		}
		if stat, ok := s.lastStats[name]; ok {
			statCopy := stat
			snap.LastStat = &statCopy
		}
		out = append(out, snap)
	}
	return out
}

// Count reports the number of tracked streams.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
