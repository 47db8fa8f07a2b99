package storage

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore persists values in an on-disk LevelDB database.
type LevelDBStore struct {
	db *leveldb.DB
}

var _ KeyValueStore = (*LevelDBStore)(nil)

// OpenLevelDB opens (or creates) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("leveldb storage path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, errors.Wrap(err, "resolve leveldb path")
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb store")
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrClosed
	}
	value, err := s.db.Get([]byte(key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrapf(err, "load %s", key)
	}
	return value, true, nil
}

func (s *LevelDBStore) Set(key string, value []byte) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return errors.Wrapf(err, "store %s", key)
	}
	return nil
}

func (s *LevelDBStore) Remove(key string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return errors.Wrapf(err, "remove %s", key)
	}
	return nil
}

// Close releases the underlying LevelDB resources.
func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
