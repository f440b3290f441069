package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// usageBucket holds stored-byte counters keyed by "{user}/{box}".
var usageBucket = []byte("usage")

// QuotaLedger tracks on-disk bytes per (user, box) in a bbolt database, one
// per installation. Put operations charge it, deletes release it; the Store
// consults it when a box has a byte quota configured.
type QuotaLedger struct {
	db *bolt.DB
}

// OpenQuotaLedger opens (or creates) the ledger database at path.
func OpenQuotaLedger(path string) (*QuotaLedger, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open quota ledger: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usageBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init quota ledger: %w", err)
	}

	return &QuotaLedger{db: db}, nil
}

// Close releases the underlying database.
func (q *QuotaLedger) Close() error {
	if q.db == nil {
		return nil
	}
	err := q.db.Close()
	q.db = nil
	return err
}

// Usage returns the recorded stored bytes for a box.
func (q *QuotaLedger) Usage(userID, boxID string) (int64, error) {
	if q.db == nil {
		return 0, ErrLedgerClosed
	}

	var usage int64
	err := q.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(usageBucket).Get(usageKey(userID, boxID))
		if len(v) == 8 {
			usage = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: read quota ledger: %w", err)
	}
	return usage, nil
}

// adjust applies a signed byte delta to a box's counter, clamping at zero so
// accounting drift can never go negative.
func (q *QuotaLedger) adjust(userID, boxID string, delta int64) error {
	if q.db == nil {
		return ErrLedgerClosed
	}

	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(usageBucket)
		key := usageKey(userID, boxID)

		var usage int64
		if v := b.Get(key); len(v) == 8 {
			usage = int64(binary.BigEndian.Uint64(v))
		}
		usage += delta
		if usage < 0 {
			usage = 0
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(usage))
		return b.Put(key, buf[:])
	})
	if err != nil {
		return fmt.Errorf("storage: update quota ledger: %w", err)
	}
	return nil
}

func usageKey(userID, boxID string) []byte {
	return []byte(userID + "/" + boxID)
}
