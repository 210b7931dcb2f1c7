package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	sessionBucketName = "session"
	userKey           = "@hisab_user"
	receiptsKey       = "@hisab_receipts"
)

// ErrCorruptRecord is returned when a stored record cannot be decoded
var ErrCorruptRecord = errors.New("corrupt record")

// Store defines the durable user/session storage
type Store interface {
	// LoadUser returns the stored user, or nil when none is stored
	LoadUser(ctx context.Context) (*User, error)

	// SaveUser replaces the stored user
	SaveUser(ctx context.Context, user *User) error

	// LoadReceipts returns the stored receipts, newest first. Absent means empty.
	LoadReceipts(ctx context.Context) ([]*Receipt, error)

	// SaveReceipts replaces the stored receipt list
	SaveReceipts(ctx context.Context, receipts []*Receipt) error

	// ClearAll removes the user and the receipts in one step
	ClearAll(ctx context.Context) error

	// Close closes the underlying database
	Close() error
}

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the session database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// get decodes the record under key into v. It reports false when the key is absent.
func (b *BoltStore) get(key string, v any) (bool, error) {
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucketName)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptRecord, key, err)
		}
		return nil
	})
	return found, err
}

// put encodes v and stores it under key in a single transaction
func (b *BoltStore) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucketName)).Put([]byte(key), data)
	})
}

// LoadUser retrieves the stored user
func (b *BoltStore) LoadUser(ctx context.Context) (*User, error) {
	var user User
	found, err := b.get(userKey, &user)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

// SaveUser saves the user
func (b *BoltStore) SaveUser(ctx context.Context, user *User) error {
	if user == nil {
		return errors.New("user is required")
	}
	return b.put(userKey, user)
}

// LoadReceipts retrieves the stored receipt list
func (b *BoltStore) LoadReceipts(ctx context.Context) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	if _, err := b.get(receiptsKey, &receipts); err != nil {
		return nil, err
	}
	if receipts == nil {
		receipts = make([]*Receipt, 0)
	}
	return receipts, nil
}

// SaveReceipts saves the full receipt list
func (b *BoltStore) SaveReceipts(ctx context.Context, receipts []*Receipt) error {
	if receipts == nil {
		receipts = make([]*Receipt, 0)
	}
	return b.put(receiptsKey, receipts)
}

// ClearAll removes both records in one transaction
func (b *BoltStore) ClearAll(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucketName))
		if err := bucket.Delete([]byte(userKey)); err != nil {
			return err
		}
		return bucket.Delete([]byte(receiptsKey))
	})
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
