package bolt

import (
	"context"
	"time"

	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"go.etcd.io/bbolt"
)

// GetCache returns the live entry for hash and bumps its access counters.
// Expired entries are deleted and reported as a miss.
func (s *Store) GetCache(ctx context.Context, hash string, now time.Time) (*gateway.CacheEntry, error) {
	var hit *gateway.CacheEntry
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		var entry gateway.CacheEntry
		found, err := getJSON(b, []byte(hash), &entry)
		if err != nil || !found {
			return err
		}
		if entry.Expired(now) {
			return b.Delete([]byte(hash))
		}
		entry.AccessCount++
		entry.LastAccessed = now.UTC()
		if err := putJSON(b, []byte(hash), entry); err != nil {
			return err
		}
		hit = &entry
		return nil
	})
	return hit, err
}

// PutCache stores or replaces the entry for its hash.
func (s *Store) PutCache(ctx context.Context, entry gateway.CacheEntry) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(cacheBucket)), []byte(entry.Hash), entry)
	})
}

// PurgeExpiredCache deletes every entry expired at now and returns how many
// were removed.
func (s *Store) PurgeExpiredCache(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var entry gateway.CacheEntry
			if err := decode(v, &entry); err != nil {
				stale = append(stale, append([]byte(nil), k...))
				return nil
			}
			if entry.Expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Purged expired cache entries")
	}
	return removed, err
}

// CacheStats reports entry count and total hits.
func (s *Store) CacheStats(ctx context.Context, now time.Time) (entries, live, hits int, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cacheBucket)).ForEach(func(k, v []byte) error {
			var entry gateway.CacheEntry
			if err := decode(v, &entry); err != nil {
				return nil
			}
			entries++
			if !entry.Expired(now) {
				live++
			}
			hits += entry.AccessCount
			return nil
		})
	})
	return entries, live, hits, err
}
