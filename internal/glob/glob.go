// Package glob implements the byte-oriented pattern grammar used by
// Find: '_' matches exactly one byte, '*' matches zero or more bytes,
// any other byte matches itself literally. There is no escape
// character (spec.md Open Question (a), resolved: none), so a key
// containing a literal '_' or '*' cannot be searched for exactly —
// only matched by a pattern that also contains a wildcard there.
//
// original_source/matcher.rs ports the same grammar with a
// Test::Until helper that advances a '*' match only up to the first
// occurrence of the byte following it. That is wrong for patterns
// with more than one '*' separated by repeated bytes (for example
// "a*b*b" against "abxbb" walks off the end looking for the second
// "b*b" after having matched only up to the first "b"). This package
// uses a standard two-pointer backtracking matcher instead, which
// handles every placement of '*' correctly.
package glob

import "errors"

// ErrBadPattern is returned by Compile for patterns Compile rejects.
// The grammar has no invalid byte sequences of its own; this exists
// for future grammar extensions and so callers have a stable error to
// check against.
var ErrBadPattern = errors.New("glob: bad pattern")

const (
	single = '_'
	any    = '*'
)

// Pattern is a compiled glob ready for repeated matching.
type Pattern struct {
	src []byte
}

// Compile validates and wraps pattern for matching.
func Compile(pattern []byte) (*Pattern, error) {
	cp := make([]byte, len(pattern))
	copy(cp, pattern)
	return &Pattern{src: cp}, nil
}

// MustCompile is Compile without an error return, for constant
// patterns known at init time.
func MustCompile(pattern string) *Pattern {
	p, _ := Compile([]byte(pattern))
	return p
}

// String returns the original pattern text.
func (p *Pattern) String() string { return string(p.src) }

// Match reports whether key matches the compiled pattern in full:
// every byte of key must be accounted for by the pattern, and vice
// versa.
func (p *Pattern) Match(key []byte) bool {
	return match(p.src, key)
}

// match is a classic two-pointer wildcard matcher: advance both
// pattern and key together on literal/'_' matches, and on '*' record
// a backtrack point (starPat, starKey) to retry from if a later
// mismatch occurs, growing how much the '*' consumes by one byte each
// retry.
func match(pat, key []byte) bool {
	var pi, ki int
	starPi, starKi := -1, -1

	for ki < len(key) {
		switch {
		case pi < len(pat) && pat[pi] == any:
			starPi, starKi = pi, ki
			pi++
		case pi < len(pat) && (pat[pi] == single || pat[pi] == key[ki]):
			pi++
			ki++
		case starPi != -1:
			starKi++
			ki = starKi
			pi = starPi + 1
		default:
			return false
		}
	}

	for pi < len(pat) && pat[pi] == any {
		pi++
	}

	return pi == len(pat)
}
