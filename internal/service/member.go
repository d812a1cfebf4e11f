package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/member"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/port/database"
	"github.com/Strob0t/CareForge/internal/port/messagequeue"
)

// Paging bounds for list requests.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// MemberFields are the editable member attributes.
type MemberFields struct {
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	PlanID      string    `json:"plan_id"`
}

// CreateMember enrolls a member.
type CreateMember struct {
	dispatch.Returns[member.Member]
	MemberFields
}

func (CreateMember) RequiredRoles() []string { return staff }

// GetMember looks up a member by ID.
type GetMember struct {
	dispatch.Returns[member.Member]
	ID string
}

// ListMembers pages through members ordered by name. A zero Limit uses the
// default page size.
type ListMembers struct {
	dispatch.Returns[[]member.Member]
	Limit  int
	Offset int
}

// UpdateMember replaces a member's attributes. Version must match the
// stored version.
type UpdateMember struct {
	dispatch.Returns[member.Member]
	ID      string `json:"-"`
	Version int    `json:"version"`
	MemberFields
}

func (UpdateMember) RequiredRoles() []string { return staff }

// DeleteMember removes a member without prescriptions.
type DeleteMember struct {
	dispatch.Returns[bool]
	ID string
}

func (DeleteMember) RequiredRoles() []string { return adminOnly }

// CheckEligibility decides whether a member's plan covers a drug.
type CheckEligibility struct {
	dispatch.Returns[member.Eligibility]
	MemberID string
	DrugCode string
}

// Member validation codes.
const (
	CodeMemberIDRequired   = "MEMBER_ID_REQUIRED"
	CodeMemberNameRequired = "MEMBER_NAME_REQUIRED"
	CodeMemberDOBInvalid   = "MEMBER_DOB_INVALID"
	CodeMemberEmailInvalid = "MEMBER_EMAIL_INVALID"
	CodePageInvalid        = "PAGE_INVALID"
	CodeDrugCodeRequired   = "DRUG_CODE_REQUIRED"
	CodeVersionRequired    = "VERSION_REQUIRED"
)

// MemberService handles member enrollment.
type MemberService struct {
	store  database.Store
	events *Events
	now    func() time.Time
}

// NewMemberService creates a MemberService.
func NewMemberService(store database.Store, ev *Events) *MemberService {
	return &MemberService{store: store, events: ev, now: time.Now}
}

// Register binds the member handlers and validators.
func (s *MemberService) Register(b *dispatch.Builder) {
	namesOK := func(f MemberFields) bool {
		return strings.TrimSpace(f.FirstName) != "" && strings.TrimSpace(f.LastName) != ""
	}
	dobOK := func(f MemberFields) bool {
		return !f.DateOfBirth.IsZero() && !f.DateOfBirth.After(s.now())
	}
	emailOK := func(f MemberFields) bool {
		if f.Email == "" {
			return true
		}
		_, err := mail.ParseAddress(f.Email)
		return err == nil
	}

	dispatch.Validate(b,
		dispatch.Check(CodeMemberNameRequired, "first and last name are required", func(r CreateMember) bool { return namesOK(r.MemberFields) }),
		dispatch.Check(CodeMemberDOBInvalid, "date of birth is required and may not be in the future", func(r CreateMember) bool { return dobOK(r.MemberFields) }),
		dispatch.Check(CodeMemberEmailInvalid, "email is not a valid address", func(r CreateMember) bool { return emailOK(r.MemberFields) }),
	)
	dispatch.Validate(b,
		idRequired(CodeMemberIDRequired, "member id", func(r UpdateMember) string { return r.ID }),
		dispatch.Check(CodeVersionRequired, "version is required", func(r UpdateMember) bool { return r.Version > 0 }),
		dispatch.Check(CodeMemberNameRequired, "first and last name are required", func(r UpdateMember) bool { return namesOK(r.MemberFields) }),
		dispatch.Check(CodeMemberDOBInvalid, "date of birth is required and may not be in the future", func(r UpdateMember) bool { return dobOK(r.MemberFields) }),
		dispatch.Check(CodeMemberEmailInvalid, "email is not a valid address", func(r UpdateMember) bool { return emailOK(r.MemberFields) }),
	)
	dispatch.Validate(b, idRequired(CodeMemberIDRequired, "member id", func(r GetMember) string { return r.ID }))
	dispatch.Validate(b, idRequired(CodeMemberIDRequired, "member id", func(r DeleteMember) string { return r.ID }))
	dispatch.Validate(b, pageValid(func(r ListMembers) (int, int) { return r.Limit, r.Offset }))
	dispatch.Validate(b,
		idRequired(CodeMemberIDRequired, "member id", func(r CheckEligibility) string { return r.MemberID }),
		idRequired(CodeDrugCodeRequired, "drug code", func(r CheckEligibility) string { return r.DrugCode }),
	)

	dispatch.Register(b, s.create)
	dispatch.Register(b, s.get)
	dispatch.Register(b, s.list)
	dispatch.Register(b, s.update)
	dispatch.Register(b, s.delete)
	dispatch.Register(b, s.checkEligibility)
}

func (s *MemberService) create(ctx context.Context, req CreateMember) result.Result[member.Member] {
	m := member.Member{ID: uuid.NewString()}
	applyMemberFields(&m, req.MemberFields)
	if err := s.store.CreateMember(ctx, &m); err != nil {
		return result.FailureFrom[member.Member](err)
	}
	s.events.publish(ctx, messagequeue.SubjectMemberCreated, memberPayload(&m))
	return result.Success(m)
}

func (s *MemberService) get(ctx context.Context, req GetMember) result.Result[member.Member] {
	m, err := s.store.GetMember(ctx, req.ID)
	if err != nil {
		return result.Failure[member.Member](failAs(err, CodeMemberNotFound, ""))
	}
	return result.Success(*m)
}

func (s *MemberService) list(ctx context.Context, req ListMembers) result.Result[[]member.Member] {
	return result.From(s.store.ListMembers(ctx, pageSize(req.Limit), req.Offset))
}

func (s *MemberService) update(ctx context.Context, req UpdateMember) result.Result[member.Member] {
	current := result.From(s.store.GetMember(ctx, req.ID))
	if current.IsFailure() {
		return result.Failure[member.Member](memberLookupErr(current.Err()))
	}
	checked := current.Ensure(func(m *member.Member) bool { return m.Version == req.Version },
		result.Conflict(CodeStaleVersion, fmt.Sprintf("member %s was modified; reload and retry", req.ID)))
	return result.Bind(checked, func(m *member.Member) result.Result[member.Member] {
		applyMemberFields(m, req.MemberFields)
		if err := s.store.UpdateMember(ctx, m); err != nil {
			return result.Failure[member.Member](failAs(err, CodeMemberNotFound, CodeStaleVersion))
		}
		s.events.publish(ctx, messagequeue.SubjectMemberUpdated, memberPayload(m))
		return result.Success(*m)
	})
}

func (s *MemberService) delete(ctx context.Context, req DeleteMember) result.Result[bool] {
	if err := s.store.DeleteMember(ctx, req.ID); err != nil {
		return result.Failure[bool](failAs(err, CodeMemberNotFound, ""))
	}
	s.events.publish(ctx, messagequeue.SubjectMemberDeleted, messagequeue.MemberEventPayload{MemberID: req.ID})
	return result.Success(true)
}

// checkEligibility has no coverage rules to evaluate yet.
func (s *MemberService) checkEligibility(context.Context, CheckEligibility) result.Result[member.Eligibility] {
	return result.NotImplemented[member.Eligibility]("eligibility check")
}

func applyMemberFields(m *member.Member, f MemberFields) {
	m.FirstName = strings.TrimSpace(f.FirstName)
	m.LastName = strings.TrimSpace(f.LastName)
	m.DateOfBirth = f.DateOfBirth
	m.Email = strings.TrimSpace(f.Email)
	m.Phone = strings.TrimSpace(f.Phone)
	m.PlanID = strings.TrimSpace(f.PlanID)
}

func memberPayload(m *member.Member) messagequeue.MemberEventPayload {
	return messagequeue.MemberEventPayload{MemberID: m.ID, PlanID: m.PlanID, Version: m.Version}
}

func memberLookupErr(e result.Error) result.Error {
	if e.Kind == result.KindNotFound {
		e.Code = CodeMemberNotFound
	}
	return e
}

func pageValid[Req any](page func(Req) (limit, offset int)) dispatch.ValidatorFunc[Req] {
	return dispatch.Check(CodePageInvalid, fmt.Sprintf("limit must be 0..%d and offset non-negative", maxPageSize),
		func(r Req) bool {
			limit, offset := page(r)
			return limit >= 0 && limit <= maxPageSize && offset >= 0
		})
}

func pageSize(limit int) int {
	if limit == 0 {
		return defaultPageSize
	}
	return limit
}
