// Package document defines documents attached to prescriptions, such as
// scanned paper scripts or prior-authorization forms.
package document

import "time"

// Info is the metadata of a stored document.
type Info struct {
	ID             string    `json:"id"`
	PrescriptionID string    `json:"prescription_id"`
	Name           string    `json:"name"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	Digest         string    `json:"digest,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Document is a stored document including its content.
type Document struct {
	Info
	Data []byte `json:"data"`
}

// Key returns the storage key for a document of a prescription.
func Key(prescriptionID, documentID string) string {
	return "prescriptions/" + prescriptionID + "/" + documentID
}
