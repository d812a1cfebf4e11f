package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/CareForge/internal/adapter/otel"
	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/document"
	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
	"github.com/Strob0t/CareForge/internal/domain/prescription"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/port/database"
	docport "github.com/Strob0t/CareForge/internal/port/document"
	"github.com/Strob0t/CareForge/internal/port/messagequeue"
)

// CreatePrescription records a new prescription in pending status.
type CreatePrescription struct {
	dispatch.Returns[prescription.Prescription]
	MemberID      string `json:"member_id"`
	PharmacyID    string `json:"pharmacy_id"`
	DrugCode      string `json:"drug_code"`
	DrugName      string `json:"drug_name"`
	Quantity      int    `json:"quantity"`
	Refills       int    `json:"refills"`
	PrescriberNPI string `json:"prescriber_npi,omitempty"`
}

func (CreatePrescription) RequiredRoles() []string { return staff }

// GetPrescription looks up a prescription by ID.
type GetPrescription struct {
	dispatch.Returns[prescription.Prescription]
	ID string
}

// ListMemberPrescriptions lists a member's prescriptions, newest first.
type ListMemberPrescriptions struct {
	dispatch.Returns[[]prescription.Prescription]
	MemberID string
}

// TransitionPrescription moves a prescription along its status workflow.
type TransitionPrescription struct {
	dispatch.Returns[prescription.Prescription]
	ID string              `json:"-"`
	To prescription.Status `json:"status"`
}

func (TransitionPrescription) RequiredRoles() []string { return staff }

// AttachPrescriptionDocument stores a document for a prescription.
type AttachPrescriptionDocument struct {
	dispatch.Returns[document.Info]
	PrescriptionID string
	Name           string
	ContentType    string
	Data           []byte
}

func (AttachPrescriptionDocument) RequiredRoles() []string { return staff }

// GetPrescriptionDocument loads a stored document with its content.
type GetPrescriptionDocument struct {
	dispatch.Returns[document.Document]
	PrescriptionID string
	DocumentID     string
}

// ListPrescriptionDocuments lists the documents attached to a prescription.
type ListPrescriptionDocuments struct {
	dispatch.Returns[[]document.Info]
	PrescriptionID string
}

// Prescription validation codes.
const (
	CodePrescriptionIDRequired    = "PRESCRIPTION_ID_REQUIRED"
	CodePrescriptionQuantity      = "PRESCRIPTION_QUANTITY_INVALID"
	CodePrescriptionRefills       = "PRESCRIPTION_REFILLS_INVALID"
	CodePrescriptionStatusInvalid = "PRESCRIPTION_STATUS_INVALID"
	CodePrescriberNPIInvalid      = "PRESCRIBER_NPI_INVALID"
	CodeDocumentIDRequired        = "DOCUMENT_ID_REQUIRED"
	CodeDocumentNameRequired      = "DOCUMENT_NAME_REQUIRED"
	CodeDocumentSizeInvalid       = "DOCUMENT_SIZE_INVALID"
)

const defaultContentType = "application/octet-stream"

// PrescriptionService runs the prescription workflow and its documents.
type PrescriptionService struct {
	store       database.Store
	pharmacies  *PharmacyService
	docs        docport.Store
	maxDocBytes int64
	events      *Events
	metrics     *cfotel.Metrics
	log         *slog.Logger
	now         func() time.Time
}

// NewPrescriptionService creates a PrescriptionService. Pharmacy existence
// checks go through the pharmacy service's cache. metrics may be nil.
func NewPrescriptionService(store database.Store, pharmacies *PharmacyService, docs docport.Store, maxDocBytes int64,
	ev *Events, metrics *cfotel.Metrics, log *slog.Logger,
) *PrescriptionService {
	return &PrescriptionService{
		store:       store,
		pharmacies:  pharmacies,
		docs:        docs,
		maxDocBytes: maxDocBytes,
		events:      ev,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
	}
}

// Register binds the prescription handlers and validators.
func (s *PrescriptionService) Register(b *dispatch.Builder) {
	dispatch.Validate(b,
		idRequired(CodeMemberIDRequired, "member id", func(r CreatePrescription) string { return r.MemberID }),
		idRequired(CodePharmacyIDRequired, "pharmacy id", func(r CreatePrescription) string { return r.PharmacyID }),
		idRequired(CodeDrugCodeRequired, "drug code", func(r CreatePrescription) string { return r.DrugCode }),
		dispatch.Check(CodePrescriptionQuantity, "quantity must be positive", func(r CreatePrescription) bool { return r.Quantity > 0 }),
		dispatch.Check(CodePrescriptionRefills, fmt.Sprintf("refills must be between 0 and %d", prescription.MaxRefills),
			func(r CreatePrescription) bool { return r.Refills >= 0 && r.Refills <= prescription.MaxRefills }),
		dispatch.Check(CodePrescriberNPIInvalid, "prescriber npi must be 10 digits with a valid check digit",
			func(r CreatePrescription) bool { return r.PrescriberNPI == "" || pharmacy.ValidNPI(r.PrescriberNPI) }),
	)
	dispatch.Validate(b, idRequired(CodePrescriptionIDRequired, "prescription id", func(r GetPrescription) string { return r.ID }))
	dispatch.Validate(b, idRequired(CodeMemberIDRequired, "member id", func(r ListMemberPrescriptions) string { return r.MemberID }))
	dispatch.Validate(b,
		idRequired(CodePrescriptionIDRequired, "prescription id", func(r TransitionPrescription) string { return r.ID }),
		dispatch.Check(CodePrescriptionStatusInvalid, "status must be approved, rejected, filled or cancelled",
			func(r TransitionPrescription) bool { return prescription.ValidStatus(r.To) && r.To != prescription.StatusPending }),
	)
	dispatch.Validate(b,
		idRequired(CodePrescriptionIDRequired, "prescription id", func(r AttachPrescriptionDocument) string { return r.PrescriptionID }),
		idRequired(CodeDocumentNameRequired, "document name", func(r AttachPrescriptionDocument) string { return r.Name }),
		dispatch.Check(CodeDocumentSizeInvalid, fmt.Sprintf("document must be between 1 and %d bytes", s.maxDocBytes),
			func(r AttachPrescriptionDocument) bool { return len(r.Data) > 0 && int64(len(r.Data)) <= s.maxDocBytes }),
	)
	dispatch.Validate(b,
		idRequired(CodePrescriptionIDRequired, "prescription id", func(r GetPrescriptionDocument) string { return r.PrescriptionID }),
		idRequired(CodeDocumentIDRequired, "document id", func(r GetPrescriptionDocument) string { return r.DocumentID }),
	)
	dispatch.Validate(b, idRequired(CodePrescriptionIDRequired, "prescription id", func(r ListPrescriptionDocuments) string { return r.PrescriptionID }))

	dispatch.Register(b, s.create)
	dispatch.Register(b, s.get)
	dispatch.Register(b, s.listByMember)
	dispatch.Register(b, s.transition)
	dispatch.Register(b, s.attachDocument)
	dispatch.Register(b, s.getDocument)
	dispatch.Register(b, s.listDocuments)
}

func (s *PrescriptionService) create(ctx context.Context, req CreatePrescription) result.Result[prescription.Prescription] {
	if _, err := s.store.GetMember(ctx, req.MemberID); err != nil {
		return result.Failure[prescription.Prescription](failAs(err, CodeMemberNotFound, ""))
	}
	if _, err := s.pharmacies.lookup(ctx, req.PharmacyID); err != nil {
		return result.Failure[prescription.Prescription](failAs(err, CodePharmacyNotFound, ""))
	}

	p := prescription.Prescription{
		ID:               uuid.NewString(),
		MemberID:         req.MemberID,
		PharmacyID:       req.PharmacyID,
		DrugCode:         strings.TrimSpace(req.DrugCode),
		DrugName:         strings.TrimSpace(req.DrugName),
		Quantity:         req.Quantity,
		Refills:          req.Refills,
		RefillsRemaining: req.Refills,
		PrescriberNPI:    req.PrescriberNPI,
		Status:           prescription.StatusPending,
	}
	if err := s.store.CreatePrescription(ctx, &p); err != nil {
		return result.FailureFrom[prescription.Prescription](err)
	}

	s.events.publish(ctx, messagequeue.SubjectPrescriptionCreated, messagequeue.PrescriptionCreatedPayload{
		PrescriptionID: p.ID,
		MemberID:       p.MemberID,
		PharmacyID:     p.PharmacyID,
		DrugCode:       p.DrugCode,
		Quantity:       p.Quantity,
		Refills:        p.Refills,
	})
	return result.Success(p)
}

func (s *PrescriptionService) get(ctx context.Context, req GetPrescription) result.Result[prescription.Prescription] {
	p, err := s.store.GetPrescription(ctx, req.ID)
	if err != nil {
		return result.Failure[prescription.Prescription](failAs(err, CodePrescriptionNotFound, ""))
	}
	return result.Success(*p)
}

func (s *PrescriptionService) listByMember(ctx context.Context, req ListMemberPrescriptions) result.Result[[]prescription.Prescription] {
	if _, err := s.store.GetMember(ctx, req.MemberID); err != nil {
		return result.Failure[[]prescription.Prescription](failAs(err, CodeMemberNotFound, ""))
	}
	return result.From(s.store.ListPrescriptionsByMember(ctx, req.MemberID))
}

func (s *PrescriptionService) transition(ctx context.Context, req TransitionPrescription) result.Result[prescription.Prescription] {
	stored, err := s.store.GetPrescription(ctx, req.ID)
	if err != nil {
		return result.Failure[prescription.Prescription](failAs(err, CodePrescriptionNotFound, ""))
	}
	from := stored.Status

	allowed := result.Success(stored).Ensure(
		func(p *prescription.Prescription) bool { return p.CanTransition(req.To) },
		result.Conflict(CodeInvalidTransition, prescription.TransitionError(stored, req.To)),
	)
	next := result.Map(allowed, func(p *prescription.Prescription) prescription.Prescription {
		return p.Apply(req.To, s.now())
	})

	return result.Bind(next, func(p prescription.Prescription) result.Result[prescription.Prescription] {
		if err := s.store.UpdatePrescriptionStatus(ctx, &p); err != nil {
			return result.Failure[prescription.Prescription](failAs(err, CodePrescriptionNotFound, CodeStaleVersion))
		}
		if s.metrics != nil {
			s.metrics.PrescriptionChanges.Add(ctx, 1, metric.WithAttributes(
				attribute.String("from", string(from)),
				attribute.String("to", string(p.Status)),
			))
		}
		s.events.publish(ctx, messagequeue.SubjectPrescriptionStatus, messagequeue.PrescriptionStatusPayload{
			PrescriptionID:   p.ID,
			MemberID:         p.MemberID,
			From:             string(from),
			To:               string(p.Status),
			RefillsRemaining: p.RefillsRemaining,
		})
		return result.Success(p)
	})
}

func (s *PrescriptionService) attachDocument(ctx context.Context, req AttachPrescriptionDocument) result.Result[document.Info] {
	if _, err := s.store.GetPrescription(ctx, req.PrescriptionID); err != nil {
		return result.Failure[document.Info](failAs(err, CodePrescriptionNotFound, ""))
	}

	ctx, span := cfotel.StartDocumentSpan(ctx, "put", req.PrescriptionID)
	defer span.End()

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	doc := document.Document{
		Info: document.Info{
			ID:             uuid.NewString(),
			PrescriptionID: req.PrescriptionID,
			Name:           strings.TrimSpace(req.Name),
			ContentType:    contentType,
			Size:           int64(len(req.Data)),
		},
		Data: req.Data,
	}

	info, err := s.docs.Put(ctx, doc)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return result.FailureFrom[document.Info](err)
	}

	if s.metrics != nil {
		s.metrics.DocumentBytes.Add(ctx, info.Size)
	}
	s.events.publish(ctx, messagequeue.SubjectPrescriptionDocument, messagequeue.PrescriptionDocumentPayload{
		PrescriptionID: info.PrescriptionID,
		DocumentID:     info.ID,
		Name:           info.Name,
		Size:           info.Size,
	})
	return result.Success(info)
}

func (s *PrescriptionService) getDocument(ctx context.Context, req GetPrescriptionDocument) result.Result[document.Document] {
	ctx, span := cfotel.StartDocumentSpan(ctx, "get", req.PrescriptionID)
	defer span.End()

	doc, err := s.docs.Get(ctx, req.PrescriptionID, req.DocumentID)
	if err != nil {
		return result.Failure[document.Document](failAs(err, CodeDocumentNotFound, ""))
	}
	return result.Success(*doc)
}

func (s *PrescriptionService) listDocuments(ctx context.Context, req ListPrescriptionDocuments) result.Result[[]document.Info] {
	if _, err := s.store.GetPrescription(ctx, req.PrescriptionID); err != nil {
		return result.Failure[[]document.Info](failAs(err, CodePrescriptionNotFound, ""))
	}
	return result.From(s.docs.List(ctx, req.PrescriptionID))
}
