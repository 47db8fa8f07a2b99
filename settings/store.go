package settings

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/logging"
	"slipguard/storage"
)

const (
	StorageKey      = "settings"
	DefaultDebounce = 500 * time.Millisecond
)

var ErrUnknownSetting = errors.New("unknown setting")

// Store owns the user's settings. Mutations apply immediately in memory and
// are written to the key/value store once no further mutation has happened
// for the debounce delay.
type Store struct {
	mu       sync.Mutex
	kv       storage.KeyValueStore
	settings UserSettings
	delay    time.Duration
	timer    *time.Timer
	pending  bool
	seq      uint64
	closed   bool
	logger   *zap.Logger
}

type Option func(*Store)

func WithDebounce(delay time.Duration) Option {
	return func(s *Store) { s.delay = delay }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func NewStore(kv storage.KeyValueStore, opts ...Option) *Store {
	s := &Store{kv: kv, settings: DefaultSettings(), delay: DefaultDebounce}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = logging.OrDefault(s.logger)
	return s
}

// Load replaces the in-memory settings with the stored document merged over
// the defaults. Read or decode failures fall back to the defaults.
func (s *Store) Load() UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = DefaultSettings()
	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		s.logger.Warn("failed to read settings", zap.Error(err))
		return s.settings
	}
	if !ok {
		return s.settings
	}
	merged, err := Merge(raw)
	if err != nil {
		s.logger.Warn("discarding corrupt settings", zap.Error(err))
	}
	s.settings = merged
	return s.settings
}

func (s *Store) Settings() UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Update applies fn to a copy of the settings and schedules a write. The
// settings are unchanged when the result fails Validate.
func (s *Store) Update(fn func(*UserSettings)) (UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.settings, err
	}
	s.settings = next
	s.scheduleLocked()
	return s.settings, nil
}

// UpdateSetting sets a single setting by its JSON name.
func (s *Store) UpdateSetting(name string, value any) (UserSettings, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return s.Settings(), errors.Wrapf(err, "encode setting %s", name)
	}
	return s.UpdateSettings(map[string]json.RawMessage{name: raw})
}

// UpdateSettings applies several settings by JSON name. Either all of them
// are applied or none is.
func (s *Store) UpdateSettings(fields map[string]json.RawMessage) (UserSettings, error) {
	known := FieldNames()
	for name := range fields {
		if _, ok := known[name]; !ok {
			return s.Settings(), errors.Wrap(ErrUnknownSetting, name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.settings
	for _, name := range sortedKeys(fields) {
		if err := next.apply(name, fields[name]); err != nil {
			return s.settings, err
		}
	}
	s.settings = next
	s.scheduleLocked()
	return s.settings, nil
}

// Reset restores the defaults and schedules a write.
func (s *Store) Reset() UserSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = DefaultSettings()
	s.scheduleLocked()
	return s.settings
}

// Pending reports whether a write is scheduled but not yet done.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Flush writes pending changes now and cancels the scheduled write.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.flushLocked()
}

// Close flushes pending changes. Later mutations are kept in memory only.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	err := s.flushLocked()
	s.closed = true
	return err
}

func (s *Store) scheduleLocked() {
	if s.closed {
		return
	}
	s.pending = true
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
	}
	seq := s.seq
	s.timer = time.AfterFunc(s.delay, func() { s.flushFromTimer(seq) })
}

// flushFromTimer ignores timers superseded by a later mutation.
func (s *Store) flushFromTimer(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		return
	}
	s.timer = nil
	if err := s.flushLocked(); err != nil {
		s.logger.Warn("failed to save settings", zap.Error(err))
	}
}

func (s *Store) flushLocked() error {
	if !s.pending || s.closed {
		return nil
	}
	raw, err := json.Marshal(s.settings)
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}
	if err := s.kv.Set(StorageKey, raw); err != nil {
		return errors.Wrap(err, "save settings")
	}
	s.pending = false
	return nil
}
