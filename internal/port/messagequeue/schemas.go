package messagequeue

// MemberEventPayload is the schema for members.* messages.
type MemberEventPayload struct {
	MemberID string `json:"member_id"`
	PlanID   string `json:"plan_id,omitempty"`
	Version  int    `json:"version"`
}

// PharmacyEventPayload is the schema for pharmacies.* messages.
type PharmacyEventPayload struct {
	PharmacyID string `json:"pharmacy_id"`
	NPI        string `json:"npi,omitempty"`
	Version    int    `json:"version"`
}

// PrescriptionCreatedPayload is the schema for prescriptions.created messages.
type PrescriptionCreatedPayload struct {
	PrescriptionID string `json:"prescription_id"`
	MemberID       string `json:"member_id"`
	PharmacyID     string `json:"pharmacy_id"`
	DrugCode       string `json:"drug_code"`
	Quantity       int    `json:"quantity"`
	Refills        int    `json:"refills"`
}

// PrescriptionStatusPayload is the schema for prescriptions.status messages.
type PrescriptionStatusPayload struct {
	PrescriptionID   string `json:"prescription_id"`
	MemberID         string `json:"member_id"`
	From             string `json:"from"`
	To               string `json:"to"`
	RefillsRemaining int    `json:"refills_remaining"`
}

// PrescriptionDocumentPayload is the schema for prescriptions.document messages.
type PrescriptionDocumentPayload struct {
	PrescriptionID string `json:"prescription_id"`
	DocumentID     string `json:"document_id"`
	Name           string `json:"name"`
	Size           int64  `json:"size"`
}

// RoleEventPayload is the schema for roles.* messages.
type RoleEventPayload struct {
	RoleID   string `json:"role_id,omitempty"`
	RoleName string `json:"role_name"`
	UserID   string `json:"user_id,omitempty"`
}
