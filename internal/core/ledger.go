package core

import (
	"fmt"
	"time"
)

// ledgerOp is the effect an event has on the ledger
type ledgerOp int

const (
	opNone ledgerOp = iota
	opInsert
	opConfirm
	opCancel
	opIgnore
	opReject
)

func (o ledgerOp) String() string {
	switch o {
	case opInsert:
		return "insert"
	case opConfirm:
		return "confirm"
	case opCancel:
		return "cancel"
	case opIgnore:
		return "ignore"
	case opReject:
		return "reject"
	default:
		return "none"
	}
}

// ledgerDecision is what to write for one classified email
type ledgerDecision struct {
	op     ledgerOp
	record *UserSubscriptionRecord
	reason string
}

// LifecycleEvent is the closed set of lifecycle events an email may carry.
// Each variant decides its own ledger transition.
type LifecycleEvent interface {
	fmt.Stringer
	decide(latest *UserSubscriptionRecord, c *ClassifiedEmail, userID string, now time.Time) ledgerDecision
}

type paidEvent struct{}

func (paidEvent) String() string { return "paid" }

func (paidEvent) decide(latest *UserSubscriptionRecord, c *ClassifiedEmail, userID string, now time.Time) ledgerDecision {
	date := c.Email.Date

	if latest == nil || (latest.Status == StatusCancelled && latest.SubscriptionEndDate != nil && date.After(*latest.SubscriptionEndDate)) {
		return ledgerDecision{
			op: opInsert,
			record: &UserSubscriptionRecord{
				ServiceName:                c.ServiceName,
				UserID:                     userID,
				SubscriptionStartDate:      date,
				Status:                     StatusActive,
				LastEmailIDProcessed:       c.Email.ID,
				LastActiveConfirmationDate: date,
				CreatedAt:                  now,
				UpdatedAt:                  now,
			},
		}
	}

	if latest.Status == StatusActive {
		updated := *latest
		if date.After(updated.LastActiveConfirmationDate) {
			updated.LastActiveConfirmationDate = date
		}
		updated.LastEmailIDProcessed = c.Email.ID
		updated.UpdatedAt = now
		return ledgerDecision{op: opConfirm, record: &updated}
	}

	return ledgerDecision{op: opIgnore, reason: "paid event does not postdate the recorded cancellation"}
}

type cancellationEvent struct{}

func (cancellationEvent) String() string { return "cancellation" }

func (cancellationEvent) decide(latest *UserSubscriptionRecord, c *ClassifiedEmail, _ string, now time.Time) ledgerDecision {
	if latest == nil || latest.Status != StatusActive {
		return ledgerDecision{op: opIgnore, reason: "no active subscription to cancel"}
	}

	date := c.Email.Date
	if date.Before(latest.SubscriptionStartDate) {
		return ledgerDecision{op: opReject, reason: "cancellation predates subscription start"}
	}

	updated := *latest
	end := date
	updated.SubscriptionEndDate = &end
	updated.Status = StatusCancelled
	updated.LastEmailIDProcessed = c.Email.ID
	updated.UpdatedAt = now
	return ledgerDecision{op: opCancel, record: &updated}
}

type noEvent struct{}

func (noEvent) String() string { return "none" }

func (noEvent) decide(*UserSubscriptionRecord, *ClassifiedEmail, string, time.Time) ledgerDecision {
	return ledgerDecision{op: opNone}
}

// Lifecycle events
var (
	EventPaid         LifecycleEvent = paidEvent{}
	EventCancellation LifecycleEvent = cancellationEvent{}
	EventNone         LifecycleEvent = noEvent{}
)

// DecideEvent applies the confidence threshold rule to a pair of scores
func DecideEvent(paid, cancel, threshold float64) LifecycleEvent {
	switch {
	case paid >= threshold && paid > cancel:
		return EventPaid
	case cancel >= threshold:
		return EventCancellation
	default:
		return EventNone
	}
}
