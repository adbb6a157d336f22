// Package scores persists the local leaderboard: the top results by WPM,
// then accuracy. A race's winner (and a solo finisher) gets an entry; the
// designated loser of a match does not.
package scores

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// Keep is how many entries the leaderboard retains.
	Keep = 10

	bucketScores = "scores"
)

// Entry is one leaderboard row.
type Entry struct {
	Name       string    `json:"name"`
	WPM        float64   `json:"wpm"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Repository stores entries in a local bbolt file.
type Repository struct {
	db *bolt.DB
}

// Open creates or opens the leaderboard file.
func Open(path string) (*Repository, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open leaderboard %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketScores))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create scores bucket: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying file.
func (r *Repository) Close() error {
	return r.db.Close()
}

type keyedEntry struct {
	key   []byte
	entry Entry
}

// Add records a result and prunes everything below the retained top ranks.
func (r *Repository) Add(e Entry) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketScores))

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		if err := b.Put([]byte(uuid.New().String()), data); err != nil {
			return fmt.Errorf("put entry: %w", err)
		}

		all, err := collect(b)
		if err != nil {
			return err
		}
		sortEntries(all)
		for _, ke := range all[min(Keep, len(all)):] {
			if err := b.Delete(ke.key); err != nil {
				return fmt.Errorf("prune entry: %w", err)
			}
		}
		return nil
	})
}

// Top returns up to n entries, best first.
func (r *Repository) Top(n int) ([]Entry, error) {
	var out []Entry
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketScores))
		all, err := collect(b)
		if err != nil {
			return err
		}
		sortEntries(all)
		for _, ke := range all[:min(n, len(all))] {
			out = append(out, ke.entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func collect(b *bolt.Bucket) ([]keyedEntry, error) {
	var all []keyedEntry
	err := b.ForEach(func(k, v []byte) error {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			// A corrupt row is skipped rather than wedging the leaderboard.
			return nil
		}
		key := make([]byte, len(k))
		copy(key, k)
		all = append(all, keyedEntry{key: key, entry: e})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scores: %w", err)
	}
	return all, nil
}

func sortEntries(all []keyedEntry) {
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].entry.WPM != all[j].entry.WPM {
			return all[i].entry.WPM > all[j].entry.WPM
		}
		return all[i].entry.Accuracy > all[j].entry.Accuracy
	})
}
