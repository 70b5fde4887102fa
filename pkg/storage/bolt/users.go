package bolt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// UserFilter narrows ListUsers.
type UserFilter struct {
	Skip     int
	Limit    int
	IsActive *bool
}

// userRecord is the stored form of a user. It keeps the fields that never
// leave the process: the API key hash and the periods the usage counters
// belong to.
type userRecord struct {
	gateway.User
	APIKeyHash string `json:"api_key_hash,omitempty"`
	UsageDay   string `json:"usage_day,omitempty"`
	UsageMonth string `json:"usage_month,omitempty"`
}

func newUserRecord(u gateway.User) userRecord {
	return userRecord{User: u, APIKeyHash: u.APIKeyHash, UsageDay: u.UsageDay, UsageMonth: u.UsageMonth}
}

func (r userRecord) user() gateway.User {
	u := r.User
	u.APIKeyHash = r.APIKeyHash
	u.UsageDay = r.UsageDay
	u.UsageMonth = r.UsageMonth
	return u
}

func getUser(b *bbolt.Bucket, id uuid.UUID) (gateway.User, error) {
	var rec userRecord
	found, err := getJSON(b, []byte(id.String()), &rec)
	if err != nil {
		return gateway.User{}, err
	}
	if !found {
		return gateway.User{}, errors.New(errors.CodeNotFound, persistenceDomain, "User not found", nil)
	}
	return rec.user(), nil
}

func putUser(b *bbolt.Bucket, u gateway.User) error {
	return putJSON(b, []byte(u.ID.String()), newUserRecord(u))
}

// CreateUser stores a new user. Emails are unique, compared case-insensitively.
func (s *Store) CreateUser(ctx context.Context, user gateway.User) (gateway.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	email := strings.ToLower(strings.TrimSpace(user.Email))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket([]byte(usersByEmailBucket))
		if idx.Get([]byte(email)) != nil {
			return errors.New(errors.CodeAlreadyExists, persistenceDomain, "Email already registered", nil)
		}
		users := tx.Bucket([]byte(usersBucket))
		if users.Get([]byte(user.ID.String())) != nil {
			return errors.New(errors.CodeAlreadyExists, persistenceDomain, fmt.Sprintf("user %s already exists", user.ID), nil)
		}
		if err := putUser(users, user); err != nil {
			return err
		}
		return idx.Put([]byte(email), []byte(user.ID.String()))
	})
	if err != nil {
		return gateway.User{}, err
	}

	s.logger.Debug().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("User created")
	return user, nil
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (gateway.User, error) {
	var user gateway.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = getUser(tx.Bucket([]byte(usersBucket)), id)
		return err
	})
	return user, err
}

// UpdateUser writes the profile fields of user (username, email, limits,
// active flag), keeping the email index in step. Usage counters, their
// periods and the API key hash are taken from the stored record, so
// concurrent RecordUsage calls are never overwritten.
func (s *Store) UpdateUser(ctx context.Context, user gateway.User) (gateway.User, error) {
	user.UpdatedAt = s.now().UTC()
	newEmail := strings.ToLower(strings.TrimSpace(user.Email))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket([]byte(usersBucket))
		idx := tx.Bucket([]byte(usersByEmailBucket))

		current, err := getUser(users, user.ID)
		if err != nil {
			return err
		}

		oldEmail := strings.ToLower(strings.TrimSpace(current.Email))
		if newEmail != oldEmail {
			if owner := idx.Get([]byte(newEmail)); owner != nil && string(owner) != user.ID.String() {
				return errors.New(errors.CodeAlreadyExists, persistenceDomain, "Email already registered", nil)
			}
			if err := idx.Delete([]byte(oldEmail)); err != nil {
				return err
			}
			if err := idx.Put([]byte(newEmail), []byte(user.ID.String())); err != nil {
				return err
			}
		}
		user.CreatedAt = current.CreatedAt
		user.APIKeyHash = current.APIKeyHash
		user.CurrentDailyUsage = current.CurrentDailyUsage
		user.CurrentMonthlyUsage = current.CurrentMonthlyUsage
		user.UsageDay = current.UsageDay
		user.UsageMonth = current.UsageMonth
		return putUser(users, user)
	})
	if err != nil {
		return gateway.User{}, err
	}
	return user, nil
}

// ListUsers returns users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context, filter UserFilter) ([]gateway.User, error) {
	var users []gateway.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(usersBucket)).ForEach(func(k, v []byte) error {
			var rec userRecord
			if err := decode(v, &rec); err != nil {
				s.logger.Warn().Err(err).Str("key", string(k)).Msg("Skipping unreadable user")
				return nil
			}
			u := rec.user()
			if filter.IsActive != nil && u.IsActive != *filter.IsActive {
				return nil
			}
			users = append(users, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	if filter.Skip >= len(users) {
		return []gateway.User{}, nil
	}
	users = users[filter.Skip:]
	if filter.Limit > 0 && len(users) > filter.Limit {
		users = users[:filter.Limit]
	}
	return users, nil
}

// RecordUsage increments the user's daily and monthly counters, resetting a
// counter when its calendar period rolled over.
func (s *Store) RecordUsage(ctx context.Context, id uuid.UUID, at time.Time) (gateway.User, error) {
	var user gateway.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(usersBucket))
		var err error
		user, err = getUser(b, id)
		if err != nil {
			return err
		}
		user.RollUsagePeriod(at)
		user.CurrentDailyUsage++
		user.CurrentMonthlyUsage++
		user.UpdatedAt = at.UTC()
		return putUser(b, user)
	})
	return user, err
}
