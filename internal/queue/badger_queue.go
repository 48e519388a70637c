// Package queue provides a durable, at-least-once sync job queue backed
// by BadgerDB. Messages survive restarts; unacknowledged messages are
// redelivered after a visibility timeout, and messages received too many
// times are dropped to break poison-pill loops.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
)

// QueueMessage is the envelope stored in Badger around each sync job
type QueueMessage struct {
	ID           string          `json:"id"`
	Job          *models.SyncJob `json:"job"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAt    time.Time       `json:"visible_at"`
	ReceiveCount int             `json:"receive_count"`
}

// BadgerQueue implements a persistent queue using BadgerDB.
// Two key families per queue:
//
//	queue:{name}:msg:{id}              -> JSON QueueMessage
//	queue:{name}:index:{visibleAt}:{id} -> empty
//
// The index timestamp is zero-padded so lexicographic key order matches
// visibility order, letting Receive stop at the first future entry.
type BadgerQueue struct {
	db                *badger.DB
	name              string
	visibilityTimeout time.Duration
	maxReceive        int
	logger            arbor.ILogger
}

// NewBadgerQueue creates a Badger-backed queue. The database handle is
// owned by the caller and is not closed by Close.
func NewBadgerQueue(db *badger.DB, config *common.QueueConfig, logger arbor.ILogger) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if config == nil {
		return nil, errors.New("queue config is required")
	}

	name := config.QueueName
	if name == "" {
		name = "sync"
	}

	maxReceive := config.MaxReceive
	if maxReceive <= 0 {
		maxReceive = 5
	}

	return &BadgerQueue{
		db:                db,
		name:              name,
		visibilityTimeout: common.ParseDurationOr(config.VisibilityTimeout, 5*time.Minute),
		maxReceive:        maxReceive,
		logger:            logger,
	}, nil
}

// Enqueue adds a job to the queue, immediately visible
func (q *BadgerQueue) Enqueue(ctx context.Context, job *models.SyncJob) error {
	return q.enqueue(job, time.Now())
}

// EnqueueWithDelay adds a job that becomes visible after the delay.
// Retry backoff is implemented by re-enqueueing with the backoff as delay.
func (q *BadgerQueue) EnqueueWithDelay(ctx context.Context, job *models.SyncJob, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	return q.enqueue(job, time.Now().Add(delay))
}

func (q *BadgerQueue) enqueue(job *models.SyncJob, visibleAt time.Time) error {
	if job == nil {
		return errors.New("job is required")
	}

	// The job ID doubles as the message ID so Extend can address
	// in-flight messages without a separate handle.
	id := job.ID
	if id == "" {
		id = uuid.New().String()
	}

	qMsg := QueueMessage{
		ID:         id,
		Job:        job,
		EnqueuedAt: time.Now(),
		VisibleAt:  visibleAt,
	}

	data, err := json.Marshal(qMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		// Re-enqueueing an in-flight job reuses its message slot. The
		// superseded index entry has to go, or the old claim deadline
		// would deliver the message a second time.
		if existing, err := txn.Get(q.msgKey(id)); err == nil {
			var old QueueMessage
			if decodeErr := existing.Value(func(val []byte) error {
				return json.Unmarshal(val, &old)
			}); decodeErr == nil {
				if err := txn.Delete(q.indexKey(old.VisibleAt, id)); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if err := txn.Set(q.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(visibleAt, id), []byte{})
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", id, err)
	}

	q.logger.Debug().
		Str("job_id", id).
		Str("queue", q.name).
		Str("visible_at", visibleAt.Format(time.RFC3339)).
		Msg("Job enqueued")

	return nil
}

// Receive pulls the next visible job. The claim (receive count increment
// and visibility bump) happens in the same transaction as the scan, so
// concurrent workers never receive the same message. Returns
// models.ErrNoMessage when nothing is ready.
func (q *BadgerQueue) Receive(ctx context.Context) (*models.SyncJob, func() error, error) {
	var qMsg QueueMessage
	var msgID string
	var oldIndexKey []byte

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.indexPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()

			ts, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}

			if ts.After(now) {
				// Keys are sorted by timestamp, so nothing later is ready either
				break
			}

			msgKey := q.msgKey(id)
			itemMsg, err := txn.Get(msgKey)
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up
					if err := txn.Delete(item.KeyCopy(nil)); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := itemMsg.Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				return err
			}

			if qMsg.ReceiveCount >= q.maxReceive {
				// Poison pill: received too many times without an ack.
				// Drop it so a crashing handler cannot wedge the queue.
				if err := txn.Delete(item.KeyCopy(nil)); err != nil {
					return err
				}
				if err := txn.Delete(msgKey); err != nil {
					return err
				}
				q.logger.Warn().
					Str("job_id", id).
					Int("receive_count", qMsg.ReceiveCount).
					Int("max_receive", q.maxReceive).
					Msg("Dropping job after too many receives")
				continue
			}

			found = true
			msgID = id
			oldIndexKey = item.KeyCopy(nil)
			break
		}

		if !found {
			return models.ErrNoMessage
		}

		// Claim: bump receive count and hide until the visibility deadline
		qMsg.ReceiveCount++
		qMsg.VisibleAt = time.Now().Add(q.visibilityTimeout)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(msgID), newData); err != nil {
			return err
		}

		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(q.indexKey(qMsg.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, nil, err
	}

	claimedReceiveCount := qMsg.ReceiveCount
	deleteFn := func() error {
		return q.db.Update(func(txn *badger.Txn) error {
			// Visibility may have moved since the claim (Extend), so the
			// current index key has to be recovered from the stored message.
			msgKey := q.msgKey(msgID)
			item, err := txn.Get(msgKey)
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // Already acknowledged
				}
				return err
			}

			var currentMsg QueueMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &currentMsg)
			}); err != nil {
				return err
			}

			// A retry re-enqueue resets the receive count. The slot then
			// belongs to the new message and this ack must leave it alone.
			if currentMsg.ReceiveCount != claimedReceiveCount {
				return nil
			}

			idxKey := q.indexKey(currentMsg.VisibleAt, msgID)
			if err := txn.Delete(idxKey); err != nil && err != badger.ErrKeyNotFound {
				return err
			}

			return txn.Delete(msgKey)
		})
	}

	return qMsg.Job, deleteFn, nil
}

// Extend pushes out the visibility deadline for an in-flight job,
// keeping long-running syncs claimed past the default timeout.
func (q *BadgerQueue) Extend(ctx context.Context, jobID string, duration time.Duration) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		msgKey := q.msgKey(jobID)
		item, err := txn.Get(msgKey)
		if err != nil {
			return err
		}

		var qMsg QueueMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &qMsg)
		}); err != nil {
			return err
		}

		oldVisibleAt := qMsg.VisibleAt
		qMsg.VisibleAt = time.Now().Add(duration)

		newData, err := json.Marshal(qMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey, newData); err != nil {
			return err
		}

		oldIndexKey := q.indexKey(oldVisibleAt, jobID)
		if err := txn.Delete(oldIndexKey); err != nil && err != badger.ErrKeyNotFound {
			return err
		}

		return txn.Set(q.indexKey(qMsg.VisibleAt, jobID), []byte{})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("no queued message for job %s", jobID)
		}
		return fmt.Errorf("failed to extend visibility for job %s: %w", jobID, err)
	}
	return nil
}

// Length returns the number of messages currently in the queue,
// including in-flight and delayed ones.
func (q *BadgerQueue) Length(ctx context.Context) (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := q.msgPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue messages: %w", err)
	}
	return count, nil
}

// Stats returns queue statistics for the status endpoint. Ready counts
// messages visible now; in_flight counts claimed messages awaiting ack;
// delayed counts messages scheduled for the future (retry backoff).
func (q *BadgerQueue) Stats(ctx context.Context) (map[string]interface{}, error) {
	var total, ready, inFlight, delayed int

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := q.msgPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var qMsg QueueMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &qMsg)
			}); err != nil {
				continue
			}

			total++
			switch {
			case !qMsg.VisibleAt.After(now):
				ready++
			case qMsg.ReceiveCount > 0:
				inFlight++
			default:
				delayed++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect queue stats: %w", err)
	}

	return map[string]interface{}{
		"name":               q.name,
		"depth":              total,
		"ready":              ready,
		"in_flight":          inFlight,
		"delayed":            delayed,
		"visibility_timeout": q.visibilityTimeout.String(),
		"max_receive":        q.maxReceive,
	}, nil
}

// Close releases queue resources. The Badger handle is managed by the
// storage layer, so this is a no-op.
func (q *BadgerQueue) Close() error {
	return nil
}

// Key helpers

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.name, id))
}

func (q *BadgerQueue) msgPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:", q.name))
}

func (q *BadgerQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string ordering matches numeric ordering
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.name, visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) indexPrefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:index:", q.name))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefix := q.indexPrefix()
	if len(key) <= len(prefix) {
		return time.Time{}, "", fmt.Errorf("invalid index key length")
	}

	// Suffix is "{20-digit-ts}:{id}"
	suffix := string(key[len(prefix):])
	if len(suffix) < 21 {
		return time.Time{}, "", fmt.Errorf("invalid index key suffix")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}

var _ interfaces.QueueManager = (*BadgerQueue)(nil)
