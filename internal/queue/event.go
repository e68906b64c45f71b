// Package queue defines the recruitment events exchanged over RabbitMQ and
// the consumer that records them.
package queue

import (
	"encoding/json"
	"fmt"
)

// RecruitmentQueue is the durable queue carrying every recruitment event.
const RecruitmentQueue = "recruitment.events"

// Event types, sent in the AMQP Type property.
const (
	TypeApplicationSubmitted    = "application.submitted"
	TypeSubmissionStatusChanged = "submission.status_changed"
)

// ApplicationSubmittedEvent is published when a member files an application.
type ApplicationSubmittedEvent struct {
	EventID      string `json:"event_id"`
	SubmissionID int64  `json:"submission_id"`
	FormID       int64  `json:"form_id"`
	UserID       int64  `json:"user_id,omitempty"`
	Applicant    string `json:"applicant"`
	SubmittedAt  string `json:"submitted_at"`
}

// SubmissionStatusChangedEvent is published when staff accept or deny an
// application.
type SubmissionStatusChangedEvent struct {
	EventID      string `json:"event_id"`
	SubmissionID int64  `json:"submission_id"`
	Status       string `json:"status"`
	StatusID     int64  `json:"status_id"`
	Actor        string `json:"actor"`
	ChangedAt    string `json:"changed_at"`
}

// FormatLine renders an event as one human friendly log line ending in a
// newline. Unknown types are rejected so they get dead-lettered rather than
// silently logged.
func FormatLine(eventType string, body []byte) (string, error) {
	switch eventType {
	case TypeApplicationSubmitted:
		var ev ApplicationSubmittedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return fmt.Sprintf("[%s] Application submitted | submission_id=%d | form_id=%d | user_id=%d | applicant=%q | event_id=%s\n",
			ev.SubmittedAt, ev.SubmissionID, ev.FormID, ev.UserID, ev.Applicant, ev.EventID), nil
	case TypeSubmissionStatusChanged:
		var ev SubmissionStatusChangedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return fmt.Sprintf("[%s] Submission status changed | submission_id=%d | status=%s (%d) | actor=%q | event_id=%s\n",
			ev.ChangedAt, ev.SubmissionID, ev.Status, ev.StatusID, ev.Actor, ev.EventID), nil
	}
	return "", fmt.Errorf("unknown event type %q", eventType)
}
