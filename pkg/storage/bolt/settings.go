package bolt

import (
	"context"

	"go.etcd.io/bbolt"
)

// GetSetting decodes the JSON value stored under key into v. It reports
// false when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key string, v interface{}) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		found, err = getJSON(tx.Bucket([]byte(settingsBucket)), []byte(key), v)
		return err
	})
	return found, err
}

// PutSetting stores v as JSON under key.
func (s *Store) PutSetting(ctx context.Context, key string, v interface{}) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(settingsBucket)), []byte(key), v)
	})
}
