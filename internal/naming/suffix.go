// Package naming implements the shared `_N` suffix convention used by the
// copy, dedupe and set-difference paths, and the collision-avoiding name
// allocator built on top of it. Generation and parsing must stay
// bit-compatible: names produced by Allocate are later stripped by the
// duplicate detector.
package naming

import (
	"fmt"
	"regexp"
)

// suffixPattern matches a trailing `_N` group where N is 1 or 2 digits.
// A 3+ digit tail (e.g. `_100`) is out of convention and must not match,
// to avoid false positives against legitimately numbered files.
var suffixPattern = regexp.MustCompile(`^(.*)_(\d{1,2})$`)

// Strip removes exactly one trailing `_N` layer from base. It returns the
// remaining root and whether a suffix was found. `Img_1_2` strips to
// (`Img_1`, true); a second call yields (`Img`, true).
func Strip(base string) (string, bool) {
	m := suffixPattern.FindStringSubmatch(base)
	if m == nil {
		return base, false
	}
	return m[1], true
}

// HasSuffix reports whether base ends in a `_N` group per the convention.
func HasSuffix(base string) bool {
	return suffixPattern.MatchString(base)
}

// IterativeStrip applies Strip until no suffix remains, walking a chain of
// nested suffixes back to the unsuffixed original.
func IterativeStrip(base string) string {
	for {
		root, ok := Strip(base)
		if !ok {
			return base
		}
		base = root
	}
}

// Join produces the suffixed form for counter. Counter 0 yields the bare
// root; counters are never zero-padded.
func Join(root string, counter int) string {
	if counter == 0 {
		return root
	}
	return fmt.Sprintf("%s_%d", root, counter)
}
