// Package summary turns a cleaned transcript into a summary by calling
// language models. An Invoker runs one part with language-correction
// retries; a Synthesizer runs one or two parts and merges them.
//
// Failures after the template has been resolved are reported through
// Result.Status rather than as errors, so a batch run can persist a
// placeholder and move on.
package summary

import (
	"errors"

	"github.com/nugget/tubedigest/internal/langcheck"
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("empty transcript")

// Status grades a generated part.
type Status int

const (
	// Success: the text passed the language check.
	Success Status = iota
	// Degraded: every attempt failed the language check; the last text is kept.
	Degraded
	// Failed: the model call itself failed; Text holds an error notice.
	Failed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// worst returns the more severe of two statuses.
func worst(a, b Status) Status {
	return max(a, b)
}

// Attempt records one model call within an Invoke.
type Attempt struct {
	Model    string
	Template string
	Number   int
	Target   langcheck.Language
	Text     string
	Passed   bool
	Reason   string
}

// Result is the outcome of one part.
type Result struct {
	Status   Status
	Text     string
	Reason   string
	Model    string
	Template string
	Attempts []Attempt

	InputTokens  int
	OutputTokens int
}

// Mode says how many parts a summary has.
type Mode int

const (
	Single Mode = iota
	Dual
)

func (m Mode) String() string {
	if m == Dual {
		return "dual"
	}
	return "single"
}

// SummaryResult is everything a Synthesize call produced. In single mode
// only Insight is populated.
type SummaryResult struct {
	Mode          Mode
	Status        Status
	Insight       Result
	Chronological Result
	Merged        string
	// Cleaned is the transcript with timestamps removed, as sent to the
	// insight part.
	Cleaned string
}

// Models returns the models that produced the summary, in merge order.
func (r SummaryResult) Models() []string {
	if r.Mode == Dual {
		return []string{r.Insight.Model, r.Chronological.Model}
	}
	return []string{r.Insight.Model}
}
