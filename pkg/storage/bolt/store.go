// Package bolt persists gateway entities in a single bbolt file.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
)

const (
	usersBucket         = "users"
	usersByEmailBucket  = "users_by_email"
	providersBucket     = "providers"
	modelsBucket        = "models"
	requestsBucket      = "requests"
	requestsByUser      = "requests_by_user"
	responsesBucket     = "responses"
	cacheBucket         = "cache"
	errorLogsBucket     = "error_logs"
	settingsBucket      = "settings"
	persistenceDomain   = "persistence"
	timeKeyLen          = 8
	requestKeyLen       = timeKeyLen + 16
	userRequestIndexLen = 16 + requestKeyLen
)

// Buckets lists every bucket created on open, in display order.
var Buckets = []string{
	usersBucket,
	usersByEmailBucket,
	providersBucket,
	modelsBucket,
	requestsBucket,
	requestsByUser,
	responsesBucket,
	cacheBucket,
	errorLogsBucket,
	settingsBucket,
}

// Store is the bbolt-backed gateway database.
type Store struct {
	db     *bbolt.DB
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// Open creates the parent directory if needed, opens the file and ensures
// every bucket exists.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(errors.CodeIoError, persistenceDomain, "failed to create data directory", err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.New(errors.CodeIoError, persistenceDomain, "failed to open bolt db", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range Buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.New(errors.CodeIoError, persistenceDomain, "failed to create buckets", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "bolt_store").Logger(),
		now:    time.Now,
	}, nil
}

// Close closes the BoltDB connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping runs an empty read transaction.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(usersBucket)) == nil {
			return errors.New(errors.CodeIoError, persistenceDomain, "users bucket missing", nil)
		}
		return nil
	})
}

// Stats returns the number of keys in each bucket.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, len(Buckets))
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, name := range Buckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				stats[name] = -1
				continue
			}
			stats[name] = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(errors.CodeIoError, persistenceDomain, "failed to read stats", err)
	}
	return stats, nil
}

func putJSON(b *bbolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.New(errors.CodeInternalError, persistenceDomain, "failed to marshal record", err)
	}
	if err := b.Put(key, data); err != nil {
		return errors.New(errors.CodeIoError, persistenceDomain, "failed to store record", err)
	}
	return nil
}

func getJSON(b *bbolt.Bucket, key []byte, v interface{}) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, decode(data, v)
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New(errors.CodeInternalError, persistenceDomain, "failed to unmarshal record", err)
	}
	return nil
}

// timeKey encodes t so that byte order matches chronological order.
func timeKey(t time.Time) []byte {
	k := make([]byte, timeKeyLen)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano()))
	return k
}

// eventKey is timeKey(t) followed by the raw id bytes.
func eventKey(t time.Time, id uuid.UUID) []byte {
	k := make([]byte, 0, requestKeyLen)
	k = append(k, timeKey(t)...)
	return append(k, id[:]...)
}
