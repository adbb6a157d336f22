package telemetry

import "time"

// Stats holds the derived typing figures broadcast during a race.
type Stats struct {
	WPM      float64
	Progress float64
	Accuracy float64
}

// Compute derives words-per-minute, completion percent and accuracy from the
// buffer typed so far. It is pure: the engine owns all state and passes the
// previous stats in so WPM can stay unchanged before time has elapsed
// (avoids a divide-by-zero ahead of the first keystroke).
//
// A "word" is the usual five characters. Accuracy counts a typed rune as an
// error when it differs from the reference rune at the same position;
// positions past the end of the reference always count as errors.
func Compute(typed, reference string, elapsed time.Duration, prev Stats) Stats {
	t := []rune(typed)
	r := []rune(reference)

	stats := Stats{WPM: prev.WPM, Accuracy: 100}

	if mins := elapsed.Minutes(); mins > 0 {
		stats.WPM = (float64(len(t)) / 5) / mins
	}

	if len(r) > 0 {
		stats.Progress = float64(len(t)) / float64(len(r)) * 100
	}

	if len(t) > 0 {
		errs := 0
		for i, c := range t {
			if i >= len(r) || c != r[i] {
				errs++
			}
		}
		stats.Accuracy = float64(len(t)-errs) / float64(len(t)) * 100
	}

	return stats
}
