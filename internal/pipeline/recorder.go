package pipeline

import (
	"context"

	"github.com/nugget/tubedigest/internal/mqtt"
	"github.com/nugget/tubedigest/internal/summary"
	"github.com/nugget/tubedigest/internal/usage"
)

// TokenRecorder counts every model call into tokens and forwards the
// record to next, which may be nil.
func TokenRecorder(next summary.Recorder, tokens *mqtt.RunTokens) summary.Recorder {
	return &tokenRecorder{next: next, tokens: tokens}
}

type tokenRecorder struct {
	next   summary.Recorder
	tokens *mqtt.RunTokens
}

func (r *tokenRecorder) Record(ctx context.Context, rec usage.Record) error {
	if r.tokens != nil {
		r.tokens.OnTokens(rec.InputTokens, rec.OutputTokens)
	}
	if r.next == nil {
		return nil
	}
	return r.next.Record(ctx, rec)
}
