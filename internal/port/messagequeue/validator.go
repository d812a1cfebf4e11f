package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	// Map subject to payload struct for structural validation.
	var target any
	switch {
	case subject == SubjectPrescriptionCreated:
		target = &PrescriptionCreatedPayload{}
	case subject == SubjectPrescriptionStatus:
		target = &PrescriptionStatusPayload{}
	case subject == SubjectPrescriptionDocument:
		target = &PrescriptionDocumentPayload{}
	case strings.HasPrefix(subject, "members."):
		target = &MemberEventPayload{}
	case strings.HasPrefix(subject, "pharmacies."):
		target = &PharmacyEventPayload{}
	case strings.HasPrefix(subject, "roles."):
		target = &RoleEventPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
