// Package users manages gateway consumers, their quotas and request history.
package users

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/Azure/ai-gateway/pkg/storage/bolt"
	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultDailyLimit   = 100
	DefaultMonthlyLimit = 1000

	DefaultListLimit     = 100
	MaxListLimit         = 1000
	DefaultRequestsLimit = 50
	MaxRequestsLimit     = 100

	recentRequestsInStats = 10
	minUsernameLength     = 3
	maxUsernameLength     = 50
)

// Store is the persistence the user service needs.
type Store interface {
	CreateUser(ctx context.Context, user gateway.User) (gateway.User, error)
	UpdateUser(ctx context.Context, user gateway.User) (gateway.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (gateway.User, error)
	ListUsers(ctx context.Context, filter bolt.UserFilter) ([]gateway.User, error)
	RecordUsage(ctx context.Context, id uuid.UUID, at time.Time) (gateway.User, error)
	ListRequestsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]gateway.Exchange, error)
	UserTotals(ctx context.Context, userID uuid.UUID) (gateway.UserTotals, error)
}

// CreateInput is the payload for a new user.
type CreateInput struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	APIKey       string `json:"api_key,omitempty"`
	DailyLimit   *int   `json:"daily_limit,omitempty"`
	MonthlyLimit *int   `json:"monthly_limit,omitempty"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Username     *string `json:"username,omitempty"`
	Email        *string `json:"email,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
	DailyLimit   *int    `json:"daily_limit,omitempty"`
	MonthlyLimit *int    `json:"monthly_limit,omitempty"`
}

// ListOptions pages through users.
type ListOptions struct {
	Skip     int
	Limit    int
	IsActive *bool
}

type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "users").Logger(),
		now:    time.Now,
	}
}

// Create validates the input, hashes the API key if one is given and stores
// the user with default quotas.
func (s *Service) Create(ctx context.Context, in CreateInput) (gateway.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if err := validateUsername(username); err != nil {
		return gateway.User{}, err
	}
	if err := validateEmail(email); err != nil {
		return gateway.User{}, err
	}

	user := gateway.User{
		Username:     username,
		Email:        email,
		DailyLimit:   DefaultDailyLimit,
		MonthlyLimit: DefaultMonthlyLimit,
		IsActive:     true,
	}
	if err := applyLimits(&user, in.DailyLimit, in.MonthlyLimit); err != nil {
		return gateway.User{}, err
	}
	if in.APIKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.APIKey), bcrypt.DefaultCost)
		if err != nil {
			return gateway.User{}, errors.Internal("users", "failed to hash API key", err)
		}
		user.APIKeyHash = string(hash)
	}

	created, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return gateway.User{}, err
	}
	s.logger.Info().Str("user_id", created.ID.String()).Str("username", created.Username).Msg("User created")
	return created, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (gateway.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return gateway.User{}, err
	}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validateUsername(username); err != nil {
			return gateway.User{}, err
		}
		user.Username = username
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateEmail(email); err != nil {
			return gateway.User{}, err
		}
		user.Email = email
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if err := applyLimits(&user, in.DailyLimit, in.MonthlyLimit); err != nil {
		return gateway.User{}, err
	}
	return s.store.UpdateUser(ctx, user)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (gateway.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *Service) List(ctx context.Context, opts ListOptions) ([]gateway.User, error) {
	if opts.Skip < 0 {
		return nil, errors.Validation("skip", "skip must not be negative")
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit < 1 || opts.Limit > MaxListLimit {
		return nil, errors.Validation("limit", fmt.Sprintf("limit must be between 1 and %d", MaxListLimit))
	}
	users, err := s.store.ListUsers(ctx, bolt.UserFilter{Skip: opts.Skip, Limit: opts.Limit, IsActive: opts.IsActive})
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []gateway.User{}
	}
	return users, nil
}

// Requests returns the user's latest exchanges, newest first.
func (s *Service) Requests(ctx context.Context, id uuid.UUID, limit int) ([]gateway.Exchange, error) {
	if limit == 0 {
		limit = DefaultRequestsLimit
	}
	if limit < 1 || limit > MaxRequestsLimit {
		return nil, errors.Validation("limit", fmt.Sprintf("limit must be between 1 and %d", MaxRequestsLimit))
	}
	exchanges, err := s.store.ListRequestsByUser(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	if exchanges == nil {
		exchanges = []gateway.Exchange{}
	}
	return exchanges, nil
}

// Stats aggregates spend and lists the most recent requests.
func (s *Service) Stats(ctx context.Context, id uuid.UUID) (gateway.UserStats, error) {
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return gateway.UserStats{}, err
	}
	totals, err := s.store.UserTotals(ctx, id)
	if err != nil {
		return gateway.UserStats{}, err
	}
	recent, err := s.store.ListRequestsByUser(ctx, id, recentRequestsInStats)
	if err != nil {
		return gateway.UserStats{}, err
	}

	stats := gateway.UserStats{
		UserID:         id,
		TotalCost:      totals.TotalCost,
		RequestCount:   totals.RequestCount,
		InputTokens:    totals.InputTokens,
		OutputTokens:   totals.OutputTokens,
		RecentRequests: make([]gateway.RecentRequest, 0, len(recent)),
	}
	for _, ex := range recent {
		r := ex.Request
		stats.RecentRequests = append(stats.RecentRequests, gateway.RecentRequest{
			RequestID:        r.ID,
			ModelName:        r.ModelName,
			ProviderName:     r.ProviderName,
			InputTokens:      r.InputTokens,
			OutputTokens:     r.OutputTokens,
			TotalCost:        r.TotalCost,
			Status:           r.Status,
			ProcessingTimeMS: r.ProcessingTimeMS,
			CreatedAt:        r.CreatedAt,
		})
	}
	return stats, nil
}

// Authorize resolves the user for a chat request. Unknown users yield nil
// so the request proceeds anonymously; inactive or exhausted users are
// rejected.
func (s *Service) Authorize(ctx context.Context, id uuid.UUID) (*gateway.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		if errors.CodeOf(err) == errors.CodeNotFound {
			s.logger.Warn().Str("user_id", id.String()).Msg("User not found, continuing without user")
			return nil, nil
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, errors.New(errors.CodeRateLimitExceeded, "users", "User is inactive", nil).
			WithDetail("user_id", id.String())
	}

	now := s.now()
	user.RollUsagePeriod(now)
	if user.OverQuota() {
		return nil, errors.RateLimitExceeded("user "+id.String(), untilNextPeriod(user, now))
	}
	return &user, nil
}

// RecordUsage counts one processed request against the user's quotas.
func (s *Service) RecordUsage(ctx context.Context, id uuid.UUID) error {
	_, err := s.store.RecordUsage(ctx, id, s.now())
	return err
}

func untilNextPeriod(user gateway.User, now time.Time) time.Duration {
	now = now.UTC()
	if user.CurrentMonthlyUsage >= user.MonthlyLimit {
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		return next.Sub(now)
	}
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLength || n > maxUsernameLength {
		return errors.Validation("username",
			fmt.Sprintf("Username must be between %d and %d characters", minUsernameLength, maxUsernameLength))
	}
	return nil
}

func validateEmail(email string) error {
	if !govalidator.IsEmail(email) {
		return errors.Validation("email", "Invalid email address")
	}
	return nil
}

func applyLimits(user *gateway.User, daily, monthly *int) error {
	if daily != nil {
		if *daily < 0 {
			return errors.Validation("daily_limit", "daily_limit must not be negative")
		}
		user.DailyLimit = *daily
	}
	if monthly != nil {
		if *monthly < 0 {
			return errors.Validation("monthly_limit", "monthly_limit must not be negative")
		}
		user.MonthlyLimit = *monthly
	}
	return nil
}
