package settings

import (
	"encoding/json"

	"github.com/pkg/errors"

	"slipguard/storage"
)

const ThemeKey = "theme"

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// LoadTheme returns the stored theme, or ThemeSystem when it is missing or
// unreadable.
func LoadTheme(kv storage.KeyValueStore) Theme {
	raw, ok, err := kv.Get(ThemeKey)
	if err != nil || !ok {
		return ThemeSystem
	}
	var theme Theme
	if err := json.Unmarshal(raw, &theme); err != nil || !theme.Valid() {
		return ThemeSystem
	}
	return theme
}

func SaveTheme(kv storage.KeyValueStore, theme Theme) error {
	if !theme.Valid() {
		return errors.Errorf("unknown theme %q", theme)
	}
	raw, err := json.Marshal(theme)
	if err != nil {
		return errors.Wrap(err, "encode theme")
	}
	return errors.Wrap(kv.Set(ThemeKey, raw), "save theme")
}
