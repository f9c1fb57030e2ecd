package enums

// OutboxDLQErrorReason explains why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means every publish attempt failed transiently.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable means the payload can never be published as stored.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUnroutable means no topic is registered for the event.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
)

// Retryable reports whether replaying the row unchanged could succeed, e.g.
// after an operator fixes the topic or the broker recovers.
func (r OutboxDLQErrorReason) Retryable() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonUnroutable
}
