package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateKnownSubjects(t *testing.T) {
	tests := []struct {
		subject string
		data    string
	}{
		{SubjectPrescriptionCreated, `{"prescription_id":"rx1","member_id":"m1","pharmacy_id":"p1","drug_code":"00071015523","quantity":30,"refills":2}`},
		{SubjectPrescriptionStatus, `{"prescription_id":"rx1","member_id":"m1","from":"pending","to":"approved","refills_remaining":2}`},
		{SubjectPrescriptionDocument, `{"prescription_id":"rx1","document_id":"d1","name":"scan.pdf","size":1024}`},
		{SubjectMemberCreated, `{"member_id":"m1","plan_id":"gold","version":1}`},
		{SubjectPharmacyDeleted, `{"pharmacy_id":"p1","version":3}`},
		{SubjectRoleAssigned, `{"role_name":"pharmacist","user_id":"u1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			if err := Validate(tt.subject, []byte(tt.data)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateDLQSubjectPassesThrough(t *testing.T) {
	// prescriptions.created.dlq is not mapped to a schema.
	if err := Validate(SubjectPrescriptionCreated+".dlq", []byte(`{"anything":1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	// Unknown subjects should pass (future-proof).
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	data := []byte(`{not valid json`)
	err := Validate(SubjectPrescriptionCreated, data)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	// Valid JSON but the wrong shape for the payload struct.
	data := []byte(`"just a string"`)
	err := Validate(SubjectPrescriptionStatus, data)
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}

func TestValidateWrongFieldType(t *testing.T) {
	data := []byte(`{"prescription_id":"rx1","quantity":"thirty"}`)
	if err := Validate(SubjectPrescriptionCreated, data); err == nil {
		t.Fatal("expected schema validation error for string quantity")
	}
}

func TestValidateEmptyJSON(t *testing.T) {
	// Empty object is valid JSON and valid for all schemas (all fields are zero-value).
	data := []byte(`{}`)
	if err := Validate(SubjectPrescriptionCreated, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
