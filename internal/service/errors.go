package service

import (
	"errors"

	"github.com/Strob0t/CareForge/internal/domain"
	"github.com/Strob0t/CareForge/internal/domain/result"
)

// Failure codes reported by the feature handlers.
const (
	CodeMemberNotFound       = "MEMBER_NOT_FOUND"
	CodePharmacyNotFound     = "PHARMACY_NOT_FOUND"
	CodePharmacyExists       = "PHARMACY_EXISTS"
	CodePrescriptionNotFound = "PRESCRIPTION_NOT_FOUND"
	CodeInvalidTransition    = "PRESCRIPTION_INVALID_TRANSITION"
	CodeDocumentNotFound     = "DOCUMENT_NOT_FOUND"
	CodeStaleVersion         = "STALE_VERSION"
)

// failAs maps err onto the outcome taxonomy, replacing the generic codes
// for missing rows and conflicts with entity-specific ones when given.
func failAs(err error, notFoundCode, conflictCode string) result.Error {
	e := result.FromError(err)
	switch {
	case notFoundCode != "" && errors.Is(err, domain.ErrNotFound):
		e.Code = notFoundCode
	case conflictCode != "" && errors.Is(err, domain.ErrConflict):
		e.Code = conflictCode
	}
	return e
}
