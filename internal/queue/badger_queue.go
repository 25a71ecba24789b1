package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/valora-io/valora/internal/models"
)

// ErrMessageLeased is returned when UpdatePayload targets a message that a
// worker currently holds; patching an in-flight payload would race the handler.
var ErrMessageLeased = errors.New("message is currently leased")

// ErrMessageNotFound is returned for operations on unknown message IDs
var ErrMessageNotFound = errors.New("message not found")

// storedMessage is the internal structure persisted in Badger
type storedMessage struct {
	ID           string               `json:"id"`
	Body         models.QueueMessage  `json:"body"`
	EnqueuedAt   time.Time            `json:"enqueued_at"`
	VisibleAt    time.Time            `json:"visible_at"`
	ReceiveCount int                  `json:"receive_count"`
}

// EnqueueOptions controls scheduling of a new message
type EnqueueOptions struct {
	// Delay postpones visibility: the message becomes leasable at
	// enqueue time + Delay. Advisory scheduling, not a guaranteed fire time.
	Delay time.Duration
}

// Stats summarizes a queue's current contents
type Stats struct {
	QueueName string `json:"queue_name"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`   // Visible now, waiting for a worker
	Scheduled int    `json:"scheduled"` // Delayed or leased (visible in the future)
}

// BadgerQueue implements a persistent queue using BadgerDB.
//
// Messages live at queue:{name}:msg:{id}; a visibility index at
// queue:{name}:index:{ts20}:{id} keeps them ordered by the time they
// become leasable, so Receive only scans the index head. Leasing moves
// the index key forward by the visibility timeout inside one update
// transaction, which is what makes the lease exclusive.
type BadgerQueue struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewBadgerQueue creates a new Badger-backed durable queue
func NewBadgerQueue(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &BadgerQueue{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Name returns the queue name
func (q *BadgerQueue) Name() string {
	return q.queueName
}

// Enqueue adds a message to the queue and returns the job handle ID.
// With a non-zero Delay the message is invisible until enqueue+delay.
func (q *BadgerQueue) Enqueue(ctx context.Context, msg models.QueueMessage, opts EnqueueOptions) (string, error) {
	id := uuid.New().String()
	if msg.JobID == "" {
		msg.JobID = id
	}

	now := time.Now()
	sMsg := storedMessage{
		ID:           id,
		Body:         msg,
		EnqueuedAt:   now,
		VisibleAt:    now.Add(opts.Delay),
		ReceiveCount: 0,
	}

	data, err := json.Marshal(sMsg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(q.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(sMsg.VisibleAt, id), []byte{})
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}

	return id, nil
}

// Receive leases the next visible message. The lease is exclusive: the
// index key is moved past now+visibilityTimeout in the same transaction
// that claims the message, so no other worker can lease it until the
// timeout expires. Returns the message and a done function that removes
// it permanently; done must be called whether the handler succeeded or
// failed (retry policy lives in MaxReceive, not here).
func (q *BadgerQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	var sMsg storedMessage
	var msgID string
	var oldIndexKey []byte
	var found bool

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found = false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			ts, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}

			if ts.After(now) {
				// Index keys sort by timestamp; nothing further is ready
				break
			}

			itemMsg, err := txn.Get(q.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Dangling index entry, clean it up
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := itemMsg.Value(func(val []byte) error {
				return json.Unmarshal(val, &sMsg)
			}); err != nil {
				return err
			}

			if sMsg.ReceiveCount >= q.maxReceive {
				// Poison pill: drop it rather than loop forever. The
				// closure must return nil even when nothing leasable
				// remains, or the drop is rolled back with the txn.
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(q.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return nil
		}

		sMsg.ReceiveCount++
		sMsg.VisibleAt = time.Now().Add(q.visibilityTimeout)

		newData, err := json.Marshal(sMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(msgID), newData); err != nil {
			return err
		}

		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(q.indexKey(sMsg.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, models.ErrNoMessage
	}

	doneFn := func() error {
		return q.delete(msgID)
	}

	return &sMsg.Body, doneFn, nil
}

// UpdatePayload patches a still-pending message's payload in place.
// Used to correct an already-scheduled delivery job (e.g. fixing
// attachments) before it becomes eligible. Fails if the message is
// currently leased, because the executing handler already decoded it.
func (q *BadgerQueue) UpdatePayload(ctx context.Context, messageID string, newPayload json.RawMessage) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(messageID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrMessageNotFound
			}
			return err
		}

		var sMsg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sMsg)
		}); err != nil {
			return err
		}

		// A leased message has ReceiveCount > 0 and a future VisibleAt
		// stamped by Receive; a delayed-but-unleased message has
		// ReceiveCount == 0 regardless of visibility.
		if sMsg.ReceiveCount > 0 && sMsg.VisibleAt.After(time.Now()) {
			return ErrMessageLeased
		}

		sMsg.Body.Payload = newPayload

		newData, err := json.Marshal(sMsg)
		if err != nil {
			return err
		}
		return txn.Set(q.msgKey(messageID), newData)
	})
}

// Extend pushes a leased message's visibility further out.
// Call periodically during long handler runs to prevent redelivery.
func (q *BadgerQueue) Extend(ctx context.Context, messageID string, duration time.Duration) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(messageID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrMessageNotFound
			}
			return err
		}

		var sMsg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sMsg)
		}); err != nil {
			return err
		}

		oldVisibleAt := sMsg.VisibleAt
		sMsg.VisibleAt = time.Now().Add(duration)

		newData, err := json.Marshal(sMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(messageID), newData); err != nil {
			return err
		}

		if err := txn.Delete(q.indexKey(oldVisibleAt, messageID)); err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return txn.Set(q.indexKey(sMsg.VisibleAt, messageID), []byte{})
	})
}

// GetStats counts messages by visibility for the dashboard
func (q *BadgerQueue) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{QueueName: q.queueName}

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ts, _, err := q.parseIndexKey(it.Item().Key())
			if err != nil {
				continue
			}
			stats.Total++
			if ts.After(now) {
				stats.Scheduled++
			} else {
				stats.Pending++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to collect queue stats: %w", err)
	}

	return stats, nil
}

// Close closes the queue (no-op; the Badger handle is managed externally)
func (q *BadgerQueue) Close() error {
	return nil
}

func (q *BadgerQueue) delete(msgID string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(q.msgKey(msgID))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // Already deleted
			}
			return err
		}

		var current storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		}); err != nil {
			return err
		}

		if err := txn.Delete(q.indexKey(current.VisibleAt, msgID)); err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return txn.Delete(q.msgKey(msgID))
	})
}

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.queueName, id))
}

func (q *BadgerQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.queueName, visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", q.queueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	tsStr := suffix[:20]
	id := suffix[21:]

	var ts int64
	if _, err := fmt.Sscanf(tsStr, "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), id, nil
}
