// Package items turns producer input into queue items. The format check is
// deliberately shallow: four dot-separated integers in 0..255.
package items

import (
	"fmt"
	"strconv"
	"strings"

	"autodrop/internal/store"
)

var ErrInvalidItem = fmt.Errorf("%w: item must be four dot-separated integers 0-255", store.ErrValidation)

type Decision int

const (
	DecisionAccept Decision = iota
	DecisionPartial
	DecisionReject
	DecisionMissing
)

// Batch is the result of parsing producer input.
type Batch struct {
	Valid   []string
	Invalid []string
}

func (b Batch) Decision() Decision {
	switch {
	case len(b.Valid) == 0 && len(b.Invalid) == 0:
		return DecisionMissing
	case len(b.Invalid) == 0:
		return DecisionAccept
	case len(b.Valid) == 0:
		return DecisionReject
	default:
		return DecisionPartial
	}
}

// Validate reports whether item looks like a dotted-quad address.
func Validate(item string) error {
	parts := strings.Split(item, ".")
	if len(parts) != 4 {
		return ErrInvalidItem
	}
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return ErrInvalidItem
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 || strings.HasPrefix(p, "+") || strings.HasPrefix(p, "-") {
			return ErrInvalidItem
		}
	}
	return nil
}

// Parse splits a list of candidate items into valid and invalid ones after
// trimming whitespace and dropping blanks. Order is preserved.
func Parse(candidates []string) Batch {
	var b Batch
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if err := Validate(c); err != nil {
			b.Invalid = append(b.Invalid, c)
			continue
		}
		b.Valid = append(b.Valid, c)
	}
	return b
}

// FromText parses a push message: one item per line. A leading command line
// such as "/push" is dropped.
func FromText(text string) Batch {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "/") {
		lines = lines[1:]
	}
	return Parse(lines)
}
