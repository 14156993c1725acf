package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields are attached to every record logged with a context carrying them.
// Processors enrich the context once and every nested call logs with the same
// event/issue/plan identifiers without passing them explicitly.
type LogFields struct {
	EventID     *int64  // Stored event id
	DeliveryID  *string // X-GitHub-Delivery
	EventType   *string // X-GitHub-Event, e.g. "issues"
	Category    *string // Routing category
	IssueNumber *int    // Source issue number
	PRNumber    *int    // Source pull request number
	PlanID      *string // Update plan id
	Attempt     *int    // Processing attempt, 0 for the first try
	Component   string  // e.g. "skillflow.worker.pool"
}

// WithLogFields merges fields into the context. Newer non-nil values win.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields returns the fields stored in ctx, or the zero value.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.EventID != nil {
		result.EventID = next.EventID
	}
	if next.DeliveryID != nil {
		result.DeliveryID = next.DeliveryID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.Category != nil {
		result.Category = next.Category
	}
	if next.IssueNumber != nil {
		result.IssueNumber = next.IssueNumber
	}
	if next.PRNumber != nil {
		result.PRNumber = next.PRNumber
	}
	if next.PlanID != nil {
		result.PlanID = next.PlanID
	}
	if next.Attempt != nil {
		result.Attempt = next.Attempt
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr returns a pointer to v, for inline LogFields literals.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to maxLen bytes and appends "..." when it was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
