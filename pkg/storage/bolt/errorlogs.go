package bolt

import (
	"context"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// LogError appends an error log entry.
func (s *Store) LogError(ctx context.Context, entry gateway.ErrorLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(errorLogsBucket)), eventKey(entry.CreatedAt, entry.ID), entry)
	})
}

// ListErrors returns up to limit entries, newest first.
func (s *Store) ListErrors(ctx context.Context, limit int) ([]gateway.ErrorLog, error) {
	var out []gateway.ErrorLog
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(errorLogsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var entry gateway.ErrorLog
			if err := decode(v, &entry); err != nil {
				return err
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}
