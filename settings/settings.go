package settings

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"slipguard/validation"
)

// ErrInvalidSetting is returned for a value outside its allowed range.
var ErrInvalidSetting = errors.New("invalid setting")

// UserSettings is the flat record of trading, display and privacy
// preferences. It is persisted as a single JSON document.
type UserSettings struct {
	// Trading
	DefaultSlippage     float64 `json:"defaultSlippage"`
	TransactionDeadline int     `json:"transactionDeadline"`
	ExpertMode          bool    `json:"expertMode"`
	AutoRouter          bool    `json:"autoRouter"`
	GasPreset           string  `json:"gasPreset"`
	CustomRpcURL        string  `json:"customRpcUrl"`

	// Display
	Currency          string `json:"currency"`
	Language          string `json:"language"`
	ShowTestnets      bool   `json:"showTestnets"`
	ShowRiskWarnings  bool   `json:"showRiskWarnings"`
	CompactNumbers    bool   `json:"compactNumbers"`
	HideSmallBalances bool   `json:"hideSmallBalances"`

	// Privacy
	HideBalances     bool `json:"hideBalances"`
	AnalyticsEnabled bool `json:"analyticsEnabled"`
}

func DefaultSettings() UserSettings {
	return UserSettings{
		DefaultSlippage:     0.5,
		TransactionDeadline: 20,
		AutoRouter:          true,
		GasPreset:           "standard",
		Currency:            "USD",
		Language:            "en",
		ShowRiskWarnings:    true,
	}
}

// Merge overlays the stored document onto DefaultSettings one key at a time.
// Keys that are unknown, hold a value of the wrong type or fail Validate keep
// the default, so documents written by older or newer versions still load.
func Merge(stored []byte) (UserSettings, error) {
	merged := DefaultSettings()
	if len(stored) == 0 {
		return merged, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(stored, &fields); err != nil {
		return merged, errors.Wrap(err, "decode stored settings")
	}
	known := FieldNames()
	for _, name := range sortedKeys(fields) {
		if _, ok := known[name]; !ok {
			continue
		}
		_ = merged.apply(name, fields[name])
	}
	return merged, nil
}

// Validate rejects values that Merge would replace with a default.
func (s UserSettings) Validate() error {
	if result := validation.ValidateSlippage(s.DefaultSlippage); !result.IsValid {
		return errors.Wrapf(ErrInvalidSetting, "defaultSlippage: %s", result.Error)
	}
	if s.TransactionDeadline <= 0 {
		return errors.Wrap(ErrInvalidSetting, "transactionDeadline must be greater than 0")
	}
	return nil
}

// apply sets the field with JSON name to raw. s is unchanged on error.
func (s *UserSettings) apply(name string, raw json.RawMessage) error {
	doc, err := json.Marshal(map[string]json.RawMessage{name: raw})
	if err != nil {
		return err
	}
	candidate := *s
	if err := json.Unmarshal(doc, &candidate); err != nil {
		return errors.Wrapf(err, "setting %s", name)
	}
	if err := candidate.Validate(); err != nil {
		return err
	}
	*s = candidate
	return nil
}

var fieldNames = collectFieldNames()

// FieldNames returns the JSON names of every setting.
func FieldNames() map[string]struct{} {
	return fieldNames
}

func collectFieldNames() map[string]struct{} {
	raw, _ := json.Marshal(DefaultSettings())
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(raw, &fields)
	names := make(map[string]struct{}, len(fields))
	for name := range fields {
		names[name] = struct{}{}
	}
	return names
}

func sortedKeys(fields map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
