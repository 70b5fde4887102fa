package bolt

import (
	"bytes"
	"context"
	"time"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// SaveExchange writes a request and its response in one transaction.
// Requests are keyed by creation time so range scans follow time order.
func (s *Store) SaveExchange(ctx context.Context, req gateway.RequestRecord, resp *gateway.ResponseRecord) error {
	if err := ctx.Err(); err != nil {
		return errors.New(errors.CodeIoError, persistenceDomain, "context cancelled before save", err)
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now().UTC()
	}
	key := eventKey(req.CreatedAt, req.ID)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := putJSON(tx.Bucket([]byte(requestsBucket)), key, req); err != nil {
			return err
		}
		if req.UserID != nil {
			idx := append(append(make([]byte, 0, userRequestIndexLen), (*req.UserID)[:]...), key...)
			if err := tx.Bucket([]byte(requestsByUser)).Put(idx, nil); err != nil {
				return errors.New(errors.CodeIoError, persistenceDomain, "failed to index request", err)
			}
		}
		if resp != nil {
			resp.RequestID = req.ID
			if resp.ID == uuid.Nil {
				resp.ID = uuid.New()
			}
			return putJSON(tx.Bucket([]byte(responsesBucket)), []byte(req.ID.String()), resp)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("request_id", req.ID.String()).
		Str("model", req.ModelName).
		Str("status", req.Status).
		Msg("Request saved")
	return nil
}

// ListRequestsByUser returns up to limit exchanges, newest first.
func (s *Store) ListRequestsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]gateway.Exchange, error) {
	var out []gateway.Exchange
	err := s.db.View(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(requestsByUser)).Cursor()
		requests := tx.Bucket([]byte(requestsBucket))
		responses := tx.Bucket([]byte(responsesBucket))

		prefix := userID[:]
		var keys [][]byte
		for k, _ := idx.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = idx.Next() {
			keys = append(keys, append([]byte(nil), k[16:]...))
		}

		for i := len(keys) - 1; i >= 0; i-- {
			if limit > 0 && len(out) >= limit {
				break
			}
			var ex gateway.Exchange
			found, err := getJSON(requests, keys[i], &ex.Request)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			var resp gateway.ResponseRecord
			if ok, err := getJSON(responses, []byte(ex.Request.ID.String()), &resp); err != nil {
				return err
			} else if ok {
				ex.Response = &resp
			}
			out = append(out, ex)
		}
		return nil
	})
	return out, err
}

// UserTotals sums cost, tokens and request count for a user.
func (s *Store) UserTotals(ctx context.Context, userID uuid.UUID) (gateway.UserTotals, error) {
	var totals gateway.UserTotals
	err := s.db.View(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(requestsByUser)).Cursor()
		requests := tx.Bucket([]byte(requestsBucket))
		prefix := userID[:]
		for k, _ := idx.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = idx.Next() {
			var req gateway.RequestRecord
			found, err := getJSON(requests, k[16:], &req)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			totals.RequestCount++
			totals.TotalCost += req.TotalCost
			totals.InputTokens += req.InputTokens
			totals.OutputTokens += req.OutputTokens
		}
		return nil
	})
	return totals, err
}

// ProviderActivitySince counts requests per provider created at or after since,
// with their average processing time.
func (s *Store) ProviderActivitySince(ctx context.Context, since time.Time) (map[string]gateway.ProviderActivity, error) {
	type acc struct {
		count int
		total int64
	}
	accs := make(map[string]*acc)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(requestsBucket)).Cursor()
		for k, v := c.Seek(timeKey(since)); k != nil; k, v = c.Next() {
			var req gateway.RequestRecord
			if err := decode(v, &req); err != nil {
				return err
			}
			if req.Status == gateway.StatusCached {
				continue
			}
			a, ok := accs[req.ProviderName]
			if !ok {
				a = &acc{}
				accs[req.ProviderName] = a
			}
			a.count++
			a.total += req.ProcessingTimeMS
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]gateway.ProviderActivity, len(accs))
	for name, a := range accs {
		act := gateway.ProviderActivity{Requests: a.count}
		if a.count > 0 {
			act.AvgProcessingMS = float64(a.total) / float64(a.count)
		}
		out[name] = act
	}
	return out, nil
}

// RecentRequests returns up to limit requests across all users, newest first.
func (s *Store) RecentRequests(ctx context.Context, limit int) ([]gateway.RequestRecord, error) {
	var out []gateway.RequestRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(requestsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var req gateway.RequestRecord
			if err := decode(v, &req); err != nil {
				return err
			}
			out = append(out, req)
		}
		return nil
	})
	return out, err
}
