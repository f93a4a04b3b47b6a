package odds

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oddsmith/poolmarket/internal/domain"
)

// durationRe matches an integer magnitude followed by a unit word, with
// optional whitespace between them, e.g. "30minutes", "5 h", "2d".
var durationRe = regexp.MustCompile(`^(\d+)\s*([a-zA-Z]+)$`)

// unitAliases maps accepted unit spellings (lowercased) to their length.
var unitAliases = map[string]time.Duration{
	"m":       time.Minute,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"h":       time.Hour,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"d":       24 * time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
}

// ParseDuration parses a human bet duration like "30minutes", "5h" or "2d"
// into a time.Duration. Units are case-insensitive; anything outside
// minute/hour/day aliases or a zero magnitude is a validation error.
func ParseDuration(s string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: duration %q must be <number><minutes|hours|days>", domain.ErrValidation, s)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: duration magnitude %q must be a positive integer", domain.ErrValidation, m[1])
	}

	unit, ok := unitAliases[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("%w: unknown duration unit %q", domain.ErrValidation, m[2])
	}

	return time.Duration(n) * unit, nil
}
