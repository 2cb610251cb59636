package report

import (
	"fmt"
	"strings"
)

// Strategy selects which report fields participate in the dedup hash.
// Values are bit flags and may be combined.
type Strategy uint8

const (
	// StrategyNone disables deduplication. Every report gets its own record.
	StrategyNone Strategy = 0

	// StrategyDefault hashes the stack trace only.
	StrategyDefault Strategy = 1

	// StrategyClassifier adds the exception classifiers.
	StrategyClassifier Strategy = 2

	// StrategyMessage adds the report message.
	StrategyMessage Strategy = 4

	// StrategyLibraryName adds the application name attribute.
	StrategyLibraryName Strategy = 8
)

var strategyNames = []struct {
	flag Strategy
	name string
}{
	{StrategyDefault, "default"},
	{StrategyClassifier, "classifier"},
	{StrategyMessage, "message"},
	{StrategyLibraryName, "library_name"},
}

// Has reports whether every bit of flag is set.
func (s Strategy) Has(flag Strategy) bool {
	return flag != StrategyNone && s&flag == flag
}

// Enabled reports whether deduplication is active at all.
func (s Strategy) Enabled() bool {
	return s != StrategyNone
}

// String renders the strategy as a "|"-joined list of flag names.
func (s Strategy) String() string {
	if s == StrategyNone {
		return "none"
	}
	var parts []string
	for _, n := range strategyNames {
		if s.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseStrategy parses a strategy from a list of flag names separated by
// "|" or ",". The empty string and "none" yield StrategyNone.
func ParseStrategy(value string) (Strategy, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || value == "none" {
		return StrategyNone, nil
	}

	var s Strategy
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == '|' || r == ',' })
	for _, field := range fields {
		field = strings.TrimSpace(field)
		found := false
		for _, n := range strategyNames {
			if field == n.name {
				s |= n.flag
				found = true
				break
			}
		}
		if !found {
			return StrategyNone, fmt.Errorf("unknown deduplication flag %q", field)
		}
	}
	return s, nil
}
