package triage

import (
	"fmt"

	"inbox-triage-go/internal/model"
)

// ClassificationError means the backend failed or answered with something
// that is not a JSON object. It is never defaulted away.
type ClassificationError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("classification failed: %s", e.Reason)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ReplyGenerationError means no usable reply text came back
type ReplyGenerationError struct {
	Reason string
	Err    error
}

func (e *ReplyGenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reply generation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("reply generation failed: %s", e.Reason)
}

func (e *ReplyGenerationError) Unwrap() error { return e.Err }

// SendFailureReason distinguishes why a reply was not sent
type SendFailureReason string

const (
	SendMissingBody     SendFailureReason = "missing_body"
	SendProviderFailure SendFailureReason = "provider_failure"
)

// SendError is returned when a reply could not be sent
type SendError struct {
	MessageID uint
	Reason    SendFailureReason
}

func (e *SendError) Error() string {
	switch e.Reason {
	case SendMissingBody:
		return fmt.Sprintf("message %d: no reply body provided and no suggested reply stored", e.MessageID)
	default:
		return fmt.Sprintf("message %d: provider failed to send the reply", e.MessageID)
	}
}

// TransitionError is returned when an operation would move a message back
// along the lifecycle. Only re-triage may do that.
type TransitionError struct {
	MessageID uint
	From      model.Status
	To        model.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("message %d: cannot move from %s to %s", e.MessageID, e.From, e.To)
}
