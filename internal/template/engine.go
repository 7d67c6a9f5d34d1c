// Package template implements the placeholder substitution engine used for
// notification bodies. Placeholders are written {{dotted.path}} and resolve
// nested map fields from caller-supplied data. The package is pure: no I/O,
// no shared state.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kursadbilgin/notify-gateway/internal/domain"
)

// Strategy controls what happens when a placeholder has no value.
type Strategy string

const (
	// StrategyKeep leaves the placeholder literal in the output.
	StrategyKeep Strategy = "KEEP"
	// StrategyBlank substitutes an empty string. Default.
	StrategyBlank Strategy = "BLANK"
	// StrategyThrow fails the render, reporting every missing key at once.
	StrategyThrow Strategy = "THROW"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// MissingKeysError reports every unresolved placeholder of a THROW render.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required placeholders: %s", strings.Join(e.Keys, ", "))
}

func (e *MissingKeysError) Is(target error) bool {
	return target == domain.ErrValidation
}

// Render substitutes every placeholder in template with the matching value
// from data. Missing values are handled per strategy; THROW collects all
// missing keys before failing rather than stopping at the first.
func Render(template string, data map[string]any, strategy Strategy) (string, error) {
	if template == "" {
		return "", nil
	}
	if strategy == "" {
		strategy = StrategyBlank
	}

	var missing []string
	result := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])
		value, ok := lookup(data, key)
		if !ok {
			missing = append(missing, key)
			if strategy == StrategyKeep || strategy == StrategyThrow {
				return match
			}
			return ""
		}
		return fmt.Sprintf("%v", value)
	})

	if strategy == StrategyThrow && len(missing) > 0 {
		return "", &MissingKeysError{Keys: dedupe(missing)}
	}

	return result, nil
}

// ExtractPlaceholders returns the deduplicated, order-preserving list of
// keys referenced by a template.
func ExtractPlaceholders(template string) []string {
	if template == "" {
		return nil
	}

	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSpace(m[1]))
	}
	return dedupe(keys)
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid   bool
	Missing []string
}

// Validate reports which referenced placeholders have no value in data,
// without rendering anything.
func Validate(template string, data map[string]any) ValidationResult {
	var missing []string
	for _, key := range ExtractPlaceholders(template) {
		if _, ok := lookup(data, key); !ok {
			missing = append(missing, key)
		}
	}
	return ValidationResult{Valid: len(missing) == 0, Missing: missing}
}

// lookup resolves a dotted path against nested maps. A nil value counts as
// missing, matching the substitution semantics.
func lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
