package sequence

import (
	"math/rand"
	"testing"
)

var (
	testAlphabet = []string{"U", "D", "L", "R", "A", "B"}
	testPattern  = []string{"U", "U", "D", "D", "L", "R", "L", "R", "B", "A", "B"}
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(Options{Pattern: testPattern, Alphabet: testAlphabet})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	return m
}

func TestNewMatcherValidation(t *testing.T) {
	if _, err := NewMatcher(Options{}); err == nil {
		t.Fatalf("expected error for empty pattern")
	}
	if _, err := NewMatcher(Options{Pattern: []string{"U", ""}}); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
	if _, err := NewMatcher(Options{Pattern: []string{"Q"}, Alphabet: testAlphabet}); err == nil {
		t.Fatalf("expected error for symbol outside alphabet")
	}
	m, err := NewMatcher(Options{Pattern: []string{"U", "S"}})
	if err != nil {
		t.Fatalf("expected gamepad alphabet default: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("unexpected length %d", m.Len())
	}

	custom, err := NewMatcher(Options{Pattern: []string{"click", "click", "U"}})
	if err != nil {
		t.Fatalf("expected pattern symbols added to the default alphabet: %v", err)
	}
	if !custom.Recognises("click") || !custom.Recognises("S") {
		t.Fatalf("expected gamepad and pattern symbols recognised")
	}
	if custom.Observe("click") || custom.Observe("click") || !custom.Observe("U") {
		t.Fatalf("expected custom pattern to match on its final symbol")
	}
	if _, err := NewMatcher(Options{Pattern: []string{"click", "U"}, Alphabet: testAlphabet}); err == nil {
		t.Fatalf("expected error for pattern symbol outside an explicit alphabet")
	}
}

func TestPatternMatchesOnlyOnFinalEvent(t *testing.T) {
	m := newTestMatcher(t)
	for i, symbol := range testPattern {
		matched := m.Observe(symbol)
		last := i == len(testPattern)-1
		if matched != last {
			t.Fatalf("event %d (%s): matched=%t, want %t", i, symbol, matched, last)
		}
	}
}

func TestSubstitutedSymbolNeverMatches(t *testing.T) {
	for pos := range testPattern {
		for _, replacement := range testAlphabet {
			if replacement == testPattern[pos] {
				continue
			}
			m := newTestMatcher(t)
			for i, symbol := range testPattern {
				if i == pos {
					symbol = replacement
				}
				if m.Observe(symbol) {
					t.Fatalf("substitution %s at %d matched", replacement, pos)
				}
			}
		}
	}
}

func TestMatchEqualsTrailingWindow(t *testing.T) {
	m := newTestMatcher(t)
	rng := rand.New(rand.NewSource(42))
	var history []string
	matches := 0

	for i := 0; i < 20000; i++ {
		var symbol string
		// Bias the stream towards the pattern so matches actually occur.
		if rng.Intn(3) == 0 {
			symbol = testPattern[len(history)%len(testPattern)]
		} else {
			symbol = testAlphabet[rng.Intn(len(testAlphabet))]
		}
		if i%97 == 0 {
			for _, s := range testPattern {
				history = append(history, s)
				if got, want := m.Observe(s), trailingEquals(history, testPattern); got != want {
					t.Fatalf("step %d: matched=%t, want %t", i, got, want)
				}
				if trailingEquals(history, testPattern) {
					matches++
				}
			}
			continue
		}
		history = append(history, symbol)
		got := m.Observe(symbol)
		want := trailingEquals(history, testPattern)
		if got != want {
			t.Fatalf("step %d: matched=%t, want %t", i, got, want)
		}
		if want {
			matches++
		}
	}
	if matches == 0 {
		t.Fatalf("expected the stream to contain matches")
	}
}

func TestUnrecognisedSymbolsAreIgnored(t *testing.T) {
	m := newTestMatcher(t)
	for i, symbol := range testPattern {
		if m.Observe("X") {
			t.Fatalf("unrecognised symbol matched")
		}
		matched := m.Observe(symbol)
		if matched != (i == len(testPattern)-1) {
			t.Fatalf("event %d: matched=%t", i, matched)
		}
	}
}

func TestWindowIsNotResetAfterMatch(t *testing.T) {
	m, err := NewMatcher(Options{Pattern: []string{"A", "B", "A", "B"}, Alphabet: testAlphabet})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	results := make([]bool, 0, 6)
	for _, symbol := range []string{"A", "B", "A", "B", "A", "B"} {
		results = append(results, m.Observe(symbol))
	}
	want := []bool{false, false, false, true, false, true}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("results %v, want %v", results, want)
		}
	}
}

func TestProgressTracksPrefix(t *testing.T) {
	m := newTestMatcher(t)
	for _, symbol := range []string{"A", "U", "U", "D"} {
		m.Observe(symbol)
	}
	if got := m.Progress(); got != 3 {
		t.Fatalf("progress = %d, want 3", got)
	}
	m.Observe("A")
	if got := m.Progress(); got != 0 {
		t.Fatalf("progress = %d after break, want 0", got)
	}
	m.Reset()
	if got := m.Progress(); got != 0 {
		t.Fatalf("progress = %d after reset, want 0", got)
	}
}

func trailingEquals(history, pattern []string) bool {
	if len(history) < len(pattern) {
		return false
	}
	tail := history[len(history)-len(pattern):]
	for i := range pattern {
		if tail[i] != pattern[i] {
			return false
		}
	}
	return true
}
