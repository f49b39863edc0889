// Package sequence recognises a fixed ordered pattern at the tail of an
// unbounded stream of input symbols.
package sequence

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// GamepadAlphabet lists the symbols produced by the gamepad decoder that take
// part in matching. Symbols outside the alphabet are ignored by the matcher.
var GamepadAlphabet = []string{"U", "D", "L", "R", "A", "B", "X", "Y", "S"}

// Options configure a Matcher.
type Options struct {
	Pattern  []string
	Alphabet []string
}

// Matcher keeps the last len(Pattern) recognised symbols in a ring buffer and
// reports when they equal the pattern. The window is not cleared after a
// match, so overlapping patterns can match again.
type Matcher struct {
	mu       sync.Mutex
	pattern  []string
	alphabet map[string]struct{}
	window   []string
	start    int
	size     int
}

// NewMatcher validates options and returns an empty matcher. An empty
// alphabet selects GamepadAlphabet plus every pattern symbol; an explicit
// alphabet must contain the whole pattern.
func NewMatcher(opts Options) (*Matcher, error) {
	if len(opts.Pattern) == 0 {
		return nil, errors.New("pattern must not be empty")
	}

	explicit := len(opts.Alphabet) > 0
	alphabetSource := opts.Alphabet
	if !explicit {
		alphabetSource = GamepadAlphabet
	}
	alphabet := make(map[string]struct{}, len(alphabetSource)+len(opts.Pattern))
	for _, symbol := range alphabetSource {
		if trimmed := strings.TrimSpace(symbol); trimmed != "" {
			alphabet[trimmed] = struct{}{}
		}
	}

	pattern := make([]string, len(opts.Pattern))
	for i, symbol := range opts.Pattern {
		trimmed := strings.TrimSpace(symbol)
		if trimmed == "" {
			return nil, fmt.Errorf("pattern symbol %d is empty", i)
		}
		if _, ok := alphabet[trimmed]; !ok {
			if !explicit {
				alphabet[trimmed] = struct{}{}
				pattern[i] = trimmed
				continue
			}
			return nil, fmt.Errorf("pattern symbol %q is not in the alphabet", trimmed)
		}
		pattern[i] = trimmed
	}

	return &Matcher{
		pattern:  pattern,
		alphabet: alphabet,
		window:   make([]string, len(pattern)),
	}, nil
}

// Len reports the pattern length.
func (m *Matcher) Len() int {
	return len(m.pattern)
}

// Recognises reports whether symbol takes part in matching.
func (m *Matcher) Recognises(symbol string) bool {
	_, ok := m.alphabet[symbol]
	return ok
}

// Observe feeds one symbol and reports whether the window now equals the
// pattern. Unrecognised symbols leave the window untouched.
func (m *Matcher) Observe(symbol string) bool {
	if !m.Recognises(symbol) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := len(m.window)
	if m.size < capacity {
		m.window[(m.start+m.size)%capacity] = symbol
		m.size++
	} else {
		m.window[m.start] = symbol
		m.start = (m.start + 1) % capacity
	}

	if m.size < capacity {
		return false
	}
	for i, want := range m.pattern {
		if m.window[(m.start+i)%capacity] != want {
			return false
		}
	}
	return true
}

// Progress returns the length of the longest pattern prefix the window ends
// with, so "U U D" after a fresh start reports 3.
func (m *Matcher) Progress() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := len(m.window)
	for n := m.size; n > 0; n-- {
		offset := m.size - n
		matched := true
		for i := 0; i < n; i++ {
			if m.window[(m.start+offset+i)%capacity] != m.pattern[i] {
				matched = false
				break
			}
		}
		if matched {
			return n
		}
	}
	return 0
}

// Reset empties the window.
func (m *Matcher) Reset() {
	m.mu.Lock()
	m.start = 0
	m.size = 0
	m.mu.Unlock()
}
