package bulkcopy

import (
	"context"
	"time"
)

// StubCall records the arguments of one CopyTree invocation.
type StubCall struct {
	Src, Dst, Pattern string
	Recurse           bool
	Retries           int
	Wait              time.Duration
}

// StubCopier is a TreeCopier for tests. It records invocations and returns a
// canned result.
type StubCopier struct {
	Calls  []StubCall
	Result Result
	Err    error
}

func (s *StubCopier) CopyTree(ctx context.Context, src, dst, pattern string, recurse bool, retries int, wait time.Duration) (Result, error) {
	s.Calls = append(s.Calls, StubCall{Src: src, Dst: dst, Pattern: pattern, Recurse: recurse, Retries: retries, Wait: wait})
	return s.Result, s.Err
}
