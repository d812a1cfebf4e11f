package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
	"github.com/Strob0t/CareForge/internal/domain/result"
	"github.com/Strob0t/CareForge/internal/port/cache"
	"github.com/Strob0t/CareForge/internal/port/database"
	"github.com/Strob0t/CareForge/internal/port/messagequeue"
)

// PharmacyFields are the editable pharmacy attributes.
type PharmacyFields struct {
	Name    string `json:"name"`
	NPI     string `json:"npi"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// CreatePharmacy registers a dispensing pharmacy.
type CreatePharmacy struct {
	dispatch.Returns[pharmacy.Pharmacy]
	PharmacyFields
}

func (CreatePharmacy) RequiredRoles() []string { return adminOnly }

// GetPharmacy looks up a pharmacy by ID.
type GetPharmacy struct {
	dispatch.Returns[pharmacy.Pharmacy]
	ID string
}

// ListPharmacies pages through pharmacies ordered by name.
type ListPharmacies struct {
	dispatch.Returns[[]pharmacy.Pharmacy]
	Limit  int
	Offset int
}

// UpdatePharmacy replaces a pharmacy's attributes. Version must match the
// stored version.
type UpdatePharmacy struct {
	dispatch.Returns[pharmacy.Pharmacy]
	ID      string `json:"-"`
	Version int    `json:"version"`
	PharmacyFields
}

func (UpdatePharmacy) RequiredRoles() []string { return adminOnly }

// DeletePharmacy removes a pharmacy without prescriptions.
type DeletePharmacy struct {
	dispatch.Returns[bool]
	ID string
}

func (DeletePharmacy) RequiredRoles() []string { return adminOnly }

// Pharmacy validation codes.
const (
	CodePharmacyIDRequired   = "PHARMACY_ID_REQUIRED"
	CodePharmacyNameRequired = "PHARMACY_NAME_REQUIRED"
	CodePharmacyNPIInvalid   = "PHARMACY_NPI_INVALID"
)

// PharmacyService handles pharmacy records. Lookups by ID are served from
// the cache and concurrent misses for the same ID share one store query.
type PharmacyService struct {
	store    database.Store
	cache    cache.Cache
	cacheTTL time.Duration
	group    singleflight.Group
	events   *Events
	log      *slog.Logger
}

// NewPharmacyService creates a PharmacyService. c may be nil to disable
// caching.
func NewPharmacyService(store database.Store, c cache.Cache, cacheTTL time.Duration, ev *Events, log *slog.Logger) *PharmacyService {
	return &PharmacyService{store: store, cache: c, cacheTTL: cacheTTL, events: ev, log: log}
}

// Register binds the pharmacy handlers and validators.
func (s *PharmacyService) Register(b *dispatch.Builder) {
	nameOK := func(f PharmacyFields) bool { return strings.TrimSpace(f.Name) != "" }
	npiOK := func(f PharmacyFields) bool { return pharmacy.ValidNPI(strings.TrimSpace(f.NPI)) }
	const npiMsg = "npi must be 10 digits with a valid check digit"

	dispatch.Validate(b,
		dispatch.Check(CodePharmacyNameRequired, "pharmacy name is required", func(r CreatePharmacy) bool { return nameOK(r.PharmacyFields) }),
		dispatch.Check(CodePharmacyNPIInvalid, npiMsg, func(r CreatePharmacy) bool { return npiOK(r.PharmacyFields) }),
	)
	dispatch.Validate(b,
		idRequired(CodePharmacyIDRequired, "pharmacy id", func(r UpdatePharmacy) string { return r.ID }),
		dispatch.Check(CodeVersionRequired, "version is required", func(r UpdatePharmacy) bool { return r.Version > 0 }),
		dispatch.Check(CodePharmacyNameRequired, "pharmacy name is required", func(r UpdatePharmacy) bool { return nameOK(r.PharmacyFields) }),
		dispatch.Check(CodePharmacyNPIInvalid, npiMsg, func(r UpdatePharmacy) bool { return npiOK(r.PharmacyFields) }),
	)
	dispatch.Validate(b, idRequired(CodePharmacyIDRequired, "pharmacy id", func(r GetPharmacy) string { return r.ID }))
	dispatch.Validate(b, idRequired(CodePharmacyIDRequired, "pharmacy id", func(r DeletePharmacy) string { return r.ID }))
	dispatch.Validate(b, pageValid(func(r ListPharmacies) (int, int) { return r.Limit, r.Offset }))

	dispatch.Register(b, s.create)
	dispatch.Register(b, s.get)
	dispatch.Register(b, s.list)
	dispatch.Register(b, s.update)
	dispatch.Register(b, s.delete)
}

func (s *PharmacyService) create(ctx context.Context, req CreatePharmacy) result.Result[pharmacy.Pharmacy] {
	p := pharmacy.Pharmacy{ID: uuid.NewString()}
	applyPharmacyFields(&p, req.PharmacyFields)
	if err := s.store.CreatePharmacy(ctx, &p); err != nil {
		return result.Failure[pharmacy.Pharmacy](failAs(err, "", CodePharmacyExists))
	}
	s.events.publish(ctx, messagequeue.SubjectPharmacyCreated, pharmacyPayload(&p))
	return result.Success(p)
}

func (s *PharmacyService) get(ctx context.Context, req GetPharmacy) result.Result[pharmacy.Pharmacy] {
	p, err := s.lookup(ctx, req.ID)
	if err != nil {
		return result.Failure[pharmacy.Pharmacy](failAs(err, CodePharmacyNotFound, ""))
	}
	return result.Success(p)
}

func (s *PharmacyService) list(ctx context.Context, req ListPharmacies) result.Result[[]pharmacy.Pharmacy] {
	return result.From(s.store.ListPharmacies(ctx, pageSize(req.Limit), req.Offset))
}

func (s *PharmacyService) update(ctx context.Context, req UpdatePharmacy) result.Result[pharmacy.Pharmacy] {
	current, err := s.store.GetPharmacy(ctx, req.ID)
	if err != nil {
		return result.Failure[pharmacy.Pharmacy](failAs(err, CodePharmacyNotFound, ""))
	}
	if current.Version != req.Version {
		return result.Failure[pharmacy.Pharmacy](result.Conflict(CodeStaleVersion,
			fmt.Sprintf("pharmacy %s was modified; reload and retry", req.ID)))
	}

	applyPharmacyFields(current, req.PharmacyFields)
	if err := s.store.UpdatePharmacy(ctx, current); err != nil {
		return result.Failure[pharmacy.Pharmacy](failAs(err, CodePharmacyNotFound, CodeStaleVersion))
	}
	s.invalidate(ctx, req.ID)
	s.events.publish(ctx, messagequeue.SubjectPharmacyUpdated, pharmacyPayload(current))
	return result.Success(*current)
}

func (s *PharmacyService) delete(ctx context.Context, req DeletePharmacy) result.Result[bool] {
	if err := s.store.DeletePharmacy(ctx, req.ID); err != nil {
		return result.Failure[bool](failAs(err, CodePharmacyNotFound, ""))
	}
	s.invalidate(ctx, req.ID)
	s.events.publish(ctx, messagequeue.SubjectPharmacyDeleted, messagequeue.PharmacyEventPayload{PharmacyID: req.ID})
	return result.Success(true)
}

// lookup returns a pharmacy from the cache, falling back to the store.
// Cache failures degrade to a store read. Concurrent misses share one store
// read; a caller that gives up does not cancel it for the others.
func (s *PharmacyService) lookup(ctx context.Context, id string) (pharmacy.Pharmacy, error) {
	key := pharmacyCacheKey(id)
	if s.cache != nil {
		p, ok, err := cache.GetJSON[pharmacy.Pharmacy](ctx, s.cache, key)
		if err != nil {
			s.log.WarnContext(ctx, "pharmacy cache read failed", "pharmacy_id", id, "error", err)
		} else if ok {
			return p, nil
		}
	}

	// The shared read must not inherit one caller's cancellation, or every
	// caller joined to it would fail with that caller's context error.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (any, error) {
		p, err := s.store.GetPharmacy(shared, id)
		if err != nil {
			return pharmacy.Pharmacy{}, err
		}
		if s.cache != nil {
			if err := cache.SetJSON(shared, s.cache, key, *p, s.cacheTTL); err != nil {
				s.log.WarnContext(shared, "pharmacy cache write failed", "pharmacy_id", id, "error", err)
			}
		}
		return *p, nil
	})

	select {
	case <-ctx.Done():
		return pharmacy.Pharmacy{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return pharmacy.Pharmacy{}, res.Err
		}
		return res.Val.(pharmacy.Pharmacy), nil
	}
}

func (s *PharmacyService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, pharmacyCacheKey(id)); err != nil {
		s.log.WarnContext(ctx, "pharmacy cache invalidation failed", "pharmacy_id", id, "error", err)
	}
}

func pharmacyCacheKey(id string) string { return "pharmacy." + id }

func applyPharmacyFields(p *pharmacy.Pharmacy, f PharmacyFields) {
	p.Name = strings.TrimSpace(f.Name)
	p.NPI = strings.TrimSpace(f.NPI)
	p.Phone = strings.TrimSpace(f.Phone)
	p.Address = strings.TrimSpace(f.Address)
}

func pharmacyPayload(p *pharmacy.Pharmacy) messagequeue.PharmacyEventPayload {
	return messagequeue.PharmacyEventPayload{PharmacyID: p.ID, NPI: p.NPI, Version: p.Version}
}
