package timestamp

import "time"

// Canonical is the single date chosen to represent a file, plus whether the
// stored created date and embedded captured date must be rewritten to match.
type Canonical struct {
	Date            time.Time
	RewriteCreated  bool
	RewriteCaptured bool
}

// SelectCanonical picks the canonical date among a file's candidates.
//
// The candidate set always contains modified, contains created unless
// ignoreCreated, and contains captured when present. An absent captured
// candidate is excluded from the comparison outright, never coerced to a
// sentinel. The earliest candidate wins unless useLatest.
//
// The caller performs the actual rewrites: created time first, then the
// embedded capture time for capture-bearing formats, then restoring the
// original modified time, since the metadata write touches it.
func SelectCanonical(created, modified time.Time, captured *time.Time, useLatest, ignoreCreated bool) Canonical {
	candidates := []time.Time{modified}
	if !ignoreCreated {
		candidates = append(candidates, created)
	}
	if captured != nil {
		candidates = append(candidates, *captured)
	}

	chosen := candidates[0]
	for _, c := range candidates[1:] {
		if (useLatest && c.After(chosen)) || (!useLatest && c.Before(chosen)) {
			chosen = c
		}
	}

	return Canonical{
		Date:            chosen,
		RewriteCreated:  !created.Equal(chosen),
		RewriteCaptured: captured != nil && !captured.Equal(chosen),
	}
}
