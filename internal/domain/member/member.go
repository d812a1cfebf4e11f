// Package member defines the Member domain entity: a person covered by a
// benefit plan who can receive prescriptions.
package member

import "time"

// Member is an enrolled plan member.
type Member struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	PlanID      string    `json:"plan_id"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FullName returns the member's display name.
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// Eligibility is the coverage decision for a drug. Its rules are not
// defined yet; the type fixes the shape returned to callers.
type Eligibility struct {
	MemberID string `json:"member_id"`
	DrugCode string `json:"drug_code"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}
