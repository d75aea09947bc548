// Package naming allocates unique client names for hosted plugins.
package naming

import (
	"strconv"
	"strings"
)

// NoName replaces empty candidates.
const NoName = "(No name)"

// suffixReserve is the room kept for a " (NN)" suffix plus terminator.
const suffixReserve = 6

// Allocator derives a unique, driver-safe name from a candidate.
type Allocator struct {
	// MaxClientNameSize is the driver's client name limit; values above 255 are capped.
	MaxClientNameSize int
	// FixedPoint repeats the duplicate scan until no existing name matches.
	// The default single pass never rechecks entries before the current one.
	FixedPoint bool
}

// Limit returns the maximum length of the base name.
func (a Allocator) Limit() int {
	return min(a.MaxClientNameSize, 255) - suffixReserve
}

// Unique returns candidate trimmed to the driver limit with ':' replaced by '.',
// suffixed with " (N)" as needed so it differs from the names in existing.
// The duplicate check runs only while the engine is running.
func (a Allocator) Unique(candidate string, existing []string, running bool) string {
	if candidate == "" {
		return NoName
	}
	limit := a.Limit()
	if limit <= 0 {
		return candidate
	}
	name := truncate(candidate, limit)
	name = strings.ReplaceAll(name, ":", ".")
	if !running {
		return name
	}

	for {
		changed := false
		for _, other := range existing {
			if other != name {
				continue
			}
			name = bump(name, limit+suffixReserve)
			changed = true
		}
		if !a.FixedPoint || !changed {
			return name
		}
	}
}

// bump increments the " (N)" suffix of name or appends " (2)". The base is
// truncated when the result would exceed max runes.
func bump(name string, max int) string {
	base, n, ok := splitSuffix(name)
	if !ok {
		base, n = name, 1
	}
	suffix := " (" + strconv.Itoa(n+1) + ")"
	if room := max - len([]rune(suffix)); len([]rune(base)) > room {
		if room < 0 {
			room = 0
		}
		base = truncate(base, room)
	}
	return base + suffix
}

// splitSuffix splits "Base (N)" where N has one or two digits.
func splitSuffix(name string) (string, int, bool) {
	if !strings.HasSuffix(name, ")") {
		return "", 0, false
	}
	open := strings.LastIndex(name, " (")
	if open < 0 {
		return "", 0, false
	}
	digits := name[open+2 : len(name)-1]
	if len(digits) < 1 || len(digits) > 2 {
		return "", 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || digits[0] == '+' || digits[0] == '-' {
		return "", 0, false
	}
	return name[:open], n, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
