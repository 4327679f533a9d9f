package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/i474232898/weather-data-distribution/internal/lamport"
)

// checkpointFile is the on-disk snapshot layout. Bucket arrays are written in
// descending Lamport order, each observation carrying injected "timestamp"
// and "ServerId" keys.
type checkpointFile struct {
	WeatherDataMap      map[string][]map[string]interface{} `json:"weatherDataMap"`
	ServerTimestampMap  map[string]int64                    `json:"serverTimestampMap"`
	MostRecentStationID string                              `json:"mostRecentStationId"`
	LatestPutTimestamp  int64                               `json:"latestPutTimestamp"`
	LamportTime         int64                               `json:"lamportTime"`
}

// SaveCheckpoint writes the full aggregation state to path. The state is
// deep-copied under the store's read lock and serialized outside it, then
// written to a temp file and renamed into place so a crash never leaves a
// half-written checkpoint.
func SaveCheckpoint(path string, s *MemoryStore, clock *lamport.Clock) error {
	snap := s.snapshot(clock.Current())

	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return errors.Wrap(err, "create temp checkpoint")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close checkpoint")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "replace checkpoint")
	}
	return nil
}

// LoadCheckpoint reads a snapshot from path and replaces all in-memory state.
// The caller decides what a missing or corrupt file means; state is only
// touched on success.
func LoadCheckpoint(path string, s *MemoryStore, clock *lamport.Clock) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read checkpoint")
	}

	var file checkpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, "parse checkpoint")
	}

	buckets := make(map[string][]Observation, len(file.WeatherDataMap))
	for stationID, entries := range file.WeatherDataMap {
		bucket := make([]Observation, 0, len(entries))
		for _, entry := range entries {
			ts, ok := numberToInt64(entry["timestamp"])
			if !ok {
				return errors.Errorf("checkpoint: station %s entry lacks a timestamp", stationID)
			}
			producerID, _ := entry["ServerId"].(string)

			fields := make(map[string]interface{}, len(entry))
			for k, v := range entry {
				if k == "timestamp" {
					continue
				}
				fields[k] = v
			}
			bucket = append(bucket, Observation{
				Fields:     fields,
				Timestamp:  ts,
				ProducerID: producerID,
			})
		}
		// Arrays are written newest-first, but re-sort to restore the bucket
		// invariant even from a hand-edited file. Stable keeps tie order.
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Timestamp > bucket[j].Timestamp
		})
		buckets[stationID] = bucket
	}

	liveness := make(map[string]int64, len(file.ServerTimestampMap))
	for producerID, ms := range file.ServerTimestampMap {
		liveness[producerID] = ms
	}

	s.mu.Lock()
	s.buckets = buckets
	s.liveness = liveness
	s.mostRecentStation = file.MostRecentStationID
	s.latestPutTime = file.LatestPutTimestamp
	s.mu.Unlock()

	clock.Restore(file.LamportTime)
	return nil
}

// snapshot copies the state into the serializable form under the read lock.
func (s *MemoryStore) snapshot(lamportTime int64) checkpointFile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	weather := make(map[string][]map[string]interface{}, len(s.buckets))
	for stationID, bucket := range s.buckets {
		entries := make([]map[string]interface{}, 0, len(bucket))
		for _, obs := range bucket {
			entry := make(map[string]interface{}, len(obs.Fields)+2)
			for k, v := range obs.Fields {
				entry[k] = v
			}
			entry["timestamp"] = obs.Timestamp
			entry["ServerId"] = obs.ProducerID
			entries = append(entries, entry)
		}
		weather[stationID] = entries
	}

	timestamps := make(map[string]int64, len(s.liveness))
	for producerID, ms := range s.liveness {
		timestamps[producerID] = ms
	}

	return checkpointFile{
		WeatherDataMap:      weather,
		ServerTimestampMap:  timestamps,
		MostRecentStationID: s.mostRecentStation,
		LatestPutTimestamp:  s.latestPutTime,
		LamportTime:         lamportTime,
	}
}

func numberToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
