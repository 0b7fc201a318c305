package mqtt

import (
	"sync"
)

// RunTokens totals the tokens spent during one run so the finished event
// can report them. It is safe for concurrent use; both parts of a dual
// summary record at the same time.
type RunTokens struct {
	mu       sync.Mutex
	input    int64
	output   int64
	requests int64
}

// OnTokens adds the counts of one completed model call.
func (r *RunTokens) OnTokens(inputTokens, outputTokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.input += int64(inputTokens)
	r.output += int64(outputTokens)
	r.requests++
}

// Snapshot returns input tokens, output tokens and call count so far.
func (r *RunTokens) Snapshot() (input, output, requests int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.input, r.output, r.requests
}
