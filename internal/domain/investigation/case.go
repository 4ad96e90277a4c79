package investigation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Case is a unit of human review tied 1:1 to a flagged or blocked transaction.
// At most one unresolved case may exist per transaction.
type Case struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AssignedTo    *uuid.UUID // nil until an investigator picks it up
	Status        Status
	Finding       Finding
	Report        string
	Priority      Priority
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Status string

const (
	// StatusAssigned: queued, no investigator yet.
	StatusAssigned Status = "Assigned"
	// StatusInReview: an investigator is working the case.
	StatusInReview Status = "In Review"
	// StatusResolved: terminal.
	StatusResolved Status = "Resolved"
)

func (s Status) String() string { return string(s) }

// IsValid checks if the status is a known case state
func (s Status) IsValid() bool {
	switch s {
	case StatusAssigned, StatusInReview, StatusResolved:
		return true
	default:
		return false
	}
}

// Finding is the investigator's binary verdict
type Finding string

const (
	FindingNone       Finding = ""
	FindingSafe       Finding = "Safe"
	FindingFraudulent Finding = "Fraudulent"
)

func (f Finding) String() string { return string(f) }

// IsVerdict reports whether the finding is an actual verdict
func (f Finding) IsVerdict() bool {
	return f == FindingSafe || f == FindingFraudulent
}

type Priority string

const (
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// NewCase opens an investigation case for a transaction
func NewCase(transactionID uuid.UUID, priority Priority) (*Case, error) {
	if transactionID == uuid.Nil {
		return nil, fmt.Errorf("transaction is required")
	}

	switch priority {
	case PriorityMedium, PriorityHigh:
	default:
		return nil, fmt.Errorf("invalid priority: %q", priority)
	}

	now := time.Now()
	return &Case{
		ID:            uuid.New(),
		TransactionID: transactionID,
		Status:        StatusAssigned,
		Finding:       FindingNone,
		Priority:      priority,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Assign hands the case to an investigator. Reassignment while in review is
// allowed; resolved cases are not assignable.
func (c *Case) Assign(investigatorID uuid.UUID) error {
	if c.Status == StatusResolved {
		return ErrResolved
	}
	if investigatorID == uuid.Nil {
		return fmt.Errorf("investigator is required")
	}

	c.AssignedTo = &investigatorID
	c.Status = StatusInReview
	c.UpdatedAt = time.Now()
	return nil
}

// Resolve closes the case with a verdict and report. Resolving twice fails.
func (c *Case) Resolve(finding Finding, report string) error {
	if c.Status == StatusResolved {
		return ErrResolved
	}
	if !finding.IsVerdict() {
		return fmt.Errorf("finding must be %s or %s", FindingSafe, FindingFraudulent)
	}

	c.Status = StatusResolved
	c.Finding = finding
	c.Report = report
	c.UpdatedAt = time.Now()
	return nil
}

// IsOpen reports whether the case still needs investigator attention
func (c *Case) IsOpen() bool {
	return c.Status != StatusResolved
}

var ErrResolved = fmt.Errorf("case is resolved")
