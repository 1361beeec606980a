package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketEvents = []byte("events")

	// ErrClosed is returned when the journal is used after Close.
	ErrClosed = errors.New("journal: closed")
)

// Record is one committed ledger event as persisted on disk. Sequence numbers
// start at 1 and never repeat, so clients can resume replay from a cursor.
type Record struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Journal is an append-only BoltDB log of committed events. It survives
// restarts so event consumers can catch up on anything they missed.
type Journal struct {
	db *bolt.DB
}

// Open initialises (and migrates) the BoltDB-backed journal.
func Open(path string, options *bolt.Options) (*Journal, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append persists the event and returns its assigned sequence number.
func (j *Journal) Append(eventType string, attributes map[string]string, recordedAt time.Time) (uint64, error) {
	if j == nil || j.db == nil {
		return 0, ErrClosed
	}
	var seq uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		record := Record{
			Sequence:   next,
			Type:       eventType,
			RecordedAt: recordedAt.UTC(),
		}
		if len(attributes) > 0 {
			record.Attributes = make(map[string]string, len(attributes))
			for key, value := range attributes {
				record.Attributes[key] = value
			}
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := bucket.Put(sequenceKey(next), payload); err != nil {
			return err
		}
		seq = next
		return nil
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ReplayAfter streams every record with a sequence strictly greater than the
// cursor, in order. A cursor of zero replays the full journal. Iteration stops
// on the first error returned by fn.
func (j *Journal) ReplayAfter(cursor uint64, fn func(Record) error) error {
	if j == nil || j.db == nil {
		return ErrClosed
	}
	return j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for key, value := c.Seek(sequenceKey(cursor + 1)); key != nil; key, value = c.Next() {
			var record Record
			if err := json.Unmarshal(value, &record); err != nil {
				return err
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastSequence reports the sequence number of the most recent record, or zero
// when the journal is empty.
func (j *Journal) LastSequence() (uint64, error) {
	if j == nil || j.db == nil {
		return 0, ErrClosed
	}
	var last uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		last = tx.Bucket(bucketEvents).Sequence()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return last, nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
