package store

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no observation is visible for a station.
	ErrNotFound = errors.New("no weather data for station")
)

// Observation is a single weather record pushed by a content server. Fields
// holds the request body as decoded JSON and is never mutated after storage.
type Observation struct {
	Fields     map[string]interface{}
	Timestamp  int64 // Lamport time carried by the PUT
	ProducerID string
}

// MemoryStore holds all aggregation state: per-station observation buckets
// ordered by Lamport time (most recent first), the producer liveness table,
// and the most-recent-station pointer.
//
// The request worker is the only writer. The checkpointer and the status API
// read concurrently, so access still goes through a RWMutex.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station id, value: observations ordered by Timestamp descending
	buckets map[string][]Observation

	// key: producer id, value: wall-clock of its last PUT, ms since epoch
	liveness map[string]int64

	mostRecentStation string
	latestPutTime     int64

	// expiry is how long a silent producer keeps contributing data.
	expiry time.Duration

	// now is the wall clock; replaceable in tests.
	now func() time.Time
}

// NewMemoryStore creates an empty store with the given producer expiry.
func NewMemoryStore(expiry time.Duration) *MemoryStore {
	return &MemoryStore{
		buckets:       make(map[string][]Observation),
		liveness:      make(map[string]int64),
		latestPutTime: -1,
		expiry:        expiry,
		now:           time.Now,
	}
}

// Put stores an observation, refreshes the producer's liveness entry and
// advances the most-recent pointer when the Lamport time is strictly newer.
// All of it happens under one lock acquisition.
func (s *MemoryStore) Put(obs Observation) {
	stationID, _ := obs.Fields["id"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.liveness[obs.ProducerID] = s.now().UnixMilli()

	bucket := s.buckets[stationID]
	// Insert keeping descending Lamport order; on equal timestamps the later
	// arrival takes the head.
	idx := len(bucket)
	for i, existing := range bucket {
		if existing.Timestamp <= obs.Timestamp {
			idx = i
			break
		}
	}
	bucket = append(bucket, Observation{})
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = obs
	s.buckets[stationID] = bucket

	if obs.Timestamp > s.latestPutTime {
		s.mostRecentStation = stationID
		s.latestPutTime = obs.Timestamp
	}
}

// Latest returns the newest observation for the station that is visible at
// the given Lamport time and whose producer has been heard from within the
// expiry window. Observations from silent producers stay stored but are
// skipped.
func (s *MemoryStore) Latest(stationID string, clock int64) (Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.buckets[stationID]
	if !ok || len(bucket) == 0 {
		return Observation{}, ErrNotFound
	}

	cutoff := s.now().UnixMilli() - s.expiry.Milliseconds()
	for _, obs := range bucket {
		if obs.Timestamp > clock {
			continue
		}
		last, alive := s.liveness[obs.ProducerID]
		if alive && last >= cutoff {
			return obs, nil
		}
	}

	return Observation{}, ErrNotFound
}

// MostRecentStation reports the station of the latest PUT seen so far.
func (s *MemoryStore) MostRecentStation() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mostRecentStation, s.mostRecentStation != ""
}

// Stats describes store contents for the status API.
type Stats struct {
	Stations          int    `json:"stations"`
	Observations      int    `json:"observations"`
	Producers         int    `json:"producers"`
	MostRecentStation string `json:"mostRecentStationId,omitempty"`
}

// Stats returns counters for operators.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, bucket := range s.buckets {
		total += len(bucket)
	}
	return Stats{
		Stations:          len(s.buckets),
		Observations:      total,
		Producers:         len(s.liveness),
		MostRecentStation: s.mostRecentStation,
	}
}

// SetNow replaces the wall clock. Tests use it to move time without sleeping.
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
