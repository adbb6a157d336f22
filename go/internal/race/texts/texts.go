// Package texts holds the reference phrases a host can pick for a match.
package texts

import "math/rand/v2"

var phrases = []string{
	"The quick brown fox jumps over the lazy dog.",
	"Never underestimate the power of a well-placed semicolon.",
	"To be, or not to be, that is the question.",
	"The journey of a thousand miles begins with a single step.",
	"In the beginning, the universe was created. This has made a lot of people very angry and been widely regarded as a bad move.",
}

// Random returns one phrase from the pool.
func Random() string {
	return phrases[rand.IntN(len(phrases))]
}

// All returns the full pool, mostly for tests.
func All() []string {
	out := make([]string, len(phrases))
	copy(out, phrases)
	return out
}
