package service

import (
	"log/slog"
	"time"

	cfotel "github.com/Strob0t/CareForge/internal/adapter/otel"
	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/port/cache"
	"github.com/Strob0t/CareForge/internal/port/database"
	docport "github.com/Strob0t/CareForge/internal/port/document"
)

// Deps are the collaborators the feature services run on. Cache, Events and
// Metrics may be nil.
type Deps struct {
	Store          database.Store
	Identity       *IdentityService
	Cache          cache.Cache
	CacheTTL       time.Duration
	Documents      docport.Store
	MaxDocumentLen int64
	Events         *Events
	Metrics        *cfotel.Metrics
	Logger         *slog.Logger
}

// RegisterAll binds every feature handler and validator to b.
func RegisterAll(b *dispatch.Builder, d Deps) {
	pharmacies := NewPharmacyService(d.Store, d.Cache, d.CacheTTL, d.Events, d.Logger)

	NewRoleService(d.Identity).Register(b)
	NewUserService(d.Identity).Register(b)
	NewMemberService(d.Store, d.Events).Register(b)
	pharmacies.Register(b)
	NewPrescriptionService(d.Store, pharmacies, d.Documents, d.MaxDocumentLen, d.Events, d.Metrics, d.Logger).Register(b)
	(&ReportService{}).Register(b)
}
