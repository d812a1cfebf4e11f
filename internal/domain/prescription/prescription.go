// Package prescription defines the Prescription domain entity and its
// status workflow.
package prescription

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a prescription.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// MaxRefills is the largest number of refills a prescription may authorize.
const MaxRefills = 11

// transitions lists the allowed target states for each state.
// filled -> filled is a refill and additionally needs remaining refills.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusFilled, StatusCancelled},
	StatusFilled:   {StatusFilled},
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFilled, StatusCancelled:
		return true
	}
	return false
}

// Prescription is a drug order for a member, dispensed by a pharmacy.
type Prescription struct {
	ID               string     `json:"id"`
	MemberID         string     `json:"member_id"`
	PharmacyID       string     `json:"pharmacy_id"`
	DrugCode         string     `json:"drug_code"`
	DrugName         string     `json:"drug_name"`
	Quantity         int        `json:"quantity"`
	Refills          int        `json:"refills"`
	RefillsRemaining int        `json:"refills_remaining"`
	PrescriberNPI    string     `json:"prescriber_npi,omitempty"`
	Status           Status     `json:"status"`
	Version          int        `json:"version"`
	FilledAt         *time.Time `json:"filled_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// CanTransition reports whether the workflow allows moving p to status to.
func (p *Prescription) CanTransition(to Status) bool {
	allowed := false
	for _, s := range transitions[p.Status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if p.Status == StatusFilled && to == StatusFilled {
		return p.RefillsRemaining > 0
	}
	return true
}

// Apply returns a copy of p moved to status to at time now. A refill
// consumes one remaining refill. Callers must check CanTransition first.
func (p Prescription) Apply(to Status, now time.Time) Prescription {
	if p.Status == StatusFilled && to == StatusFilled {
		p.RefillsRemaining--
	}
	if to == StatusFilled {
		filled := now
		p.FilledAt = &filled
	}
	p.Status = to
	p.UpdatedAt = now
	return p
}

// TransitionError describes a rejected status change.
func TransitionError(p *Prescription, to Status) string {
	if p.Status == StatusFilled && to == StatusFilled {
		return fmt.Sprintf("prescription %s has no refills remaining", p.ID)
	}
	return fmt.Sprintf("prescription %s cannot move from %s to %s", p.ID, p.Status, to)
}
