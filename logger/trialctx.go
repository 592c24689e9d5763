package logger

import "context"

type (
	// TrialCtx holds the run coordinates attached to every log line.
	TrialCtx struct {
		RunID     string
		Algorithm string
		Trial     int
		Scenario  string
	}

	trialCtxKeyStruct struct{}
)

var trialCtxKey = &trialCtxKeyStruct{}

// WithTrial returns a context carrying tc, merged over any TrialCtx already
// present. Empty fields of tc keep the existing values.
func WithTrial(ctx context.Context, tc TrialCtx) context.Context {
	if cur, ok := ctx.Value(trialCtxKey).(TrialCtx); ok {
		if tc.RunID == "" {
			tc.RunID = cur.RunID
		}
		if tc.Algorithm == "" {
			tc.Algorithm = cur.Algorithm
		}
		if tc.Trial == 0 {
			tc.Trial = cur.Trial
		}
		if tc.Scenario == "" {
			tc.Scenario = cur.Scenario
		}
	}
	return context.WithValue(ctx, trialCtxKey, tc)
}

// FromContext returns the TrialCtx stored in ctx, if any.
func FromContext(ctx context.Context) (TrialCtx, bool) {
	tc, ok := ctx.Value(trialCtxKey).(TrialCtx)
	return tc, ok
}
