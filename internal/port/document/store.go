// Package document defines the document storage port.
package document

import (
	"context"

	"github.com/Strob0t/CareForge/internal/domain/document"
)

// Store persists prescription documents. Get of a missing document returns
// an error wrapping domain.ErrNotFound.
type Store interface {
	Put(ctx context.Context, doc document.Document) (document.Info, error)
	Get(ctx context.Context, prescriptionID, documentID string) (*document.Document, error)
	List(ctx context.Context, prescriptionID string) ([]document.Info, error)
	Delete(ctx context.Context, prescriptionID, documentID string) error
}
