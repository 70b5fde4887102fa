package bolt

import (
	"context"
	"fmt"
	"sort"

	"github.com/Azure/ai-gateway/pkg/domain/errors"
	"github.com/Azure/ai-gateway/pkg/domain/gateway"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// UpsertProvider inserts or replaces a provider by name. An existing
// provider keeps its id and creation time.
func (s *Store) UpsertProvider(ctx context.Context, p gateway.Provider) (gateway.Provider, error) {
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return gateway.Provider{}, errors.New(errors.CodeValidationError, persistenceDomain, err.Error(), nil)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(providersBucket))
		var existing gateway.Provider
		found, err := getJSON(b, []byte(p.Name), &existing)
		if err != nil {
			return err
		}
		if found {
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now().UTC()
		}
		return putJSON(b, []byte(p.Name), p)
	})
	if err != nil {
		return gateway.Provider{}, err
	}
	return p, nil
}

// UpsertModel inserts or replaces a model by name. ProviderName must refer to
// a stored provider.
func (s *Store) UpsertModel(ctx context.Context, m gateway.Model) (gateway.Model, error) {
	m.ApplyDefaults()
	if err := m.Validate(); err != nil {
		return gateway.Model{}, errors.New(errors.CodeValidationError, persistenceDomain, err.Error(), nil)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		var provider gateway.Provider
		found, err := getJSON(tx.Bucket([]byte(providersBucket)), []byte(m.ProviderName), &provider)
		if err != nil {
			return err
		}
		if !found {
			return errors.New(errors.CodeNotFound, persistenceDomain,
				fmt.Sprintf("provider %q for model %q not found", m.ProviderName, m.Name), nil)
		}
		m.ProviderID = provider.ID

		b := tx.Bucket([]byte(modelsBucket))
		var existing gateway.Model
		found, err = getJSON(b, []byte(m.Name), &existing)
		if err != nil {
			return err
		}
		if found {
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
		}
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now().UTC()
		}
		return putJSON(b, []byte(m.Name), m)
	})
	if err != nil {
		return gateway.Model{}, err
	}
	return m, nil
}

// ListProviders returns providers sorted by name.
func (s *Store) ListProviders(ctx context.Context, activeOnly bool) ([]gateway.Provider, error) {
	var out []gateway.Provider
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(providersBucket))
		return b.ForEach(func(k, v []byte) error {
			var p gateway.Provider
			if err := decode(v, &p); err != nil {
				return err
			}
			if activeOnly && !p.IsActive {
				return nil
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// ListModels returns models sorted by name. With availableOnly, models that
// are unavailable or whose provider is inactive are skipped.
func (s *Store) ListModels(ctx context.Context, availableOnly bool) ([]gateway.Model, error) {
	var out []gateway.Model
	err := s.db.View(func(tx *bbolt.Tx) error {
		providers := tx.Bucket([]byte(providersBucket))
		b := tx.Bucket([]byte(modelsBucket))
		return b.ForEach(func(k, v []byte) error {
			var m gateway.Model
			if err := decode(v, &m); err != nil {
				return err
			}
			if availableOnly {
				var p gateway.Provider
				found, err := getJSON(providers, []byte(m.ProviderName), &p)
				if err != nil {
					return err
				}
				if !m.IsAvailable || !found || !p.IsActive {
					return nil
				}
			}
			out = append(out, m)
			return nil
		})
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// UpdateProviderMaxRPM changes a provider's requests-per-minute ceiling.
func (s *Store) UpdateProviderMaxRPM(ctx context.Context, name string, maxRPM int) error {
	if maxRPM <= 0 {
		return errors.New(errors.CodeValidationError, persistenceDomain, "max_requests_per_minute must be positive", nil)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(providersBucket))
		var p gateway.Provider
		found, err := getJSON(b, []byte(name), &p)
		if err != nil {
			return err
		}
		if !found {
			return errors.New(errors.CodeNotFound, persistenceDomain, fmt.Sprintf("provider %s not found", name), nil)
		}
		p.MaxRequestsPerMinute = maxRPM
		return putJSON(b, []byte(name), p)
	})
}

// CatalogEmpty reports whether no provider has been stored yet.
func (s *Store) CatalogEmpty(ctx context.Context) (bool, error) {
	empty := true
	err := s.db.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket([]byte(providersBucket)).Cursor().First()
		empty = k == nil
		return nil
	})
	return empty, err
}
