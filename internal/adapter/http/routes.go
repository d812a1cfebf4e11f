package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CareForge/internal/domain/document"
	"github.com/Strob0t/CareForge/internal/domain/member"
	"github.com/Strob0t/CareForge/internal/domain/pharmacy"
	"github.com/Strob0t/CareForge/internal/domain/prescription"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/domain/user"
	"github.com/Strob0t/CareForge/internal/middleware"
	"github.com/Strob0t/CareForge/internal/service"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	d := h.Dispatcher
	limit := h.bodyLimit()

	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
		})

		// Auth
		r.Get("/auth/me", h.Me)
		r.Post("/auth/api-keys", h.CreateAPIKey)

		// Role and user administration
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(role.Admin))

			r.Get("/roles", handleList[service.ListRoles, role.Role](d, func(*http.Request) service.ListRoles {
				return service.ListRoles{}
			}))
			r.Post("/roles", handleCommand[service.CreateRole, bool](d, limit, http.StatusCreated, nil))
			r.Get("/roles/{id}", handleQuery[service.GetRole, role.Role](d, func(r *http.Request) service.GetRole {
				return service.GetRole{ID: urlParam(r, "id")}
			}))
			r.Put("/roles/{id}", handleCommand[service.UpdateRole, role.Role](d, limit, http.StatusOK,
				func(r *http.Request, req *service.UpdateRole) { req.ID = urlParam(r, "id") }))
			r.Delete("/roles/{id}", handleDelete(d, func(r *http.Request) service.DeleteRole {
				return service.DeleteRole{ID: urlParam(r, "id")}
			}))

			r.Post("/users", handleCommand[service.CreateUser, user.User](d, limit, http.StatusCreated, nil))
			r.Put("/users/{id}/role", handleCommand[service.AssignRole, bool](d, limit, http.StatusOK,
				func(r *http.Request, req *service.AssignRole) { req.UserID = urlParam(r, "id") }))
		})

		// Members
		r.Get("/members", handleList[service.ListMembers, member.Member](d, func(r *http.Request) service.ListMembers {
			return service.ListMembers{Limit: queryInt(r, "limit"), Offset: queryInt(r, "offset")}
		}))
		r.Post("/members", handleCommand[service.CreateMember, member.Member](d, limit, http.StatusCreated, nil))
		r.Get("/members/{id}", handleQuery[service.GetMember, member.Member](d, func(r *http.Request) service.GetMember {
			return service.GetMember{ID: urlParam(r, "id")}
		}))
		r.Put("/members/{id}", handleCommand[service.UpdateMember, member.Member](d, limit, http.StatusOK,
			func(r *http.Request, req *service.UpdateMember) { req.ID = urlParam(r, "id") }))
		r.Delete("/members/{id}", handleDelete(d, func(r *http.Request) service.DeleteMember {
			return service.DeleteMember{ID: urlParam(r, "id")}
		}))
		r.Get("/members/{id}/eligibility", handleQuery[service.CheckEligibility, member.Eligibility](d,
			func(r *http.Request) service.CheckEligibility {
				return service.CheckEligibility{MemberID: urlParam(r, "id"), DrugCode: r.URL.Query().Get("drug_code")}
			}))
		r.Get("/members/{id}/prescriptions", handleList[service.ListMemberPrescriptions, prescription.Prescription](d,
			func(r *http.Request) service.ListMemberPrescriptions {
				return service.ListMemberPrescriptions{MemberID: urlParam(r, "id")}
			}))

		// Pharmacies
		r.Get("/pharmacies", handleList[service.ListPharmacies, pharmacy.Pharmacy](d, func(r *http.Request) service.ListPharmacies {
			return service.ListPharmacies{Limit: queryInt(r, "limit"), Offset: queryInt(r, "offset")}
		}))
		r.Post("/pharmacies", handleCommand[service.CreatePharmacy, pharmacy.Pharmacy](d, limit, http.StatusCreated, nil))
		r.Get("/pharmacies/{id}", handleQuery[service.GetPharmacy, pharmacy.Pharmacy](d, func(r *http.Request) service.GetPharmacy {
			return service.GetPharmacy{ID: urlParam(r, "id")}
		}))
		r.Put("/pharmacies/{id}", handleCommand[service.UpdatePharmacy, pharmacy.Pharmacy](d, limit, http.StatusOK,
			func(r *http.Request, req *service.UpdatePharmacy) { req.ID = urlParam(r, "id") }))
		r.Delete("/pharmacies/{id}", handleDelete(d, func(r *http.Request) service.DeletePharmacy {
			return service.DeletePharmacy{ID: urlParam(r, "id")}
		}))

		// Prescriptions
		r.Post("/prescriptions", handleCommand[service.CreatePrescription, prescription.Prescription](d, limit, http.StatusCreated, nil))
		r.Get("/prescriptions/{id}", handleQuery[service.GetPrescription, prescription.Prescription](d,
			func(r *http.Request) service.GetPrescription {
				return service.GetPrescription{ID: urlParam(r, "id")}
			}))
		r.Post("/prescriptions/{id}/transition", handleCommand[service.TransitionPrescription, prescription.Prescription](d, limit, http.StatusOK,
			func(r *http.Request, req *service.TransitionPrescription) { req.ID = urlParam(r, "id") }))
		r.Get("/prescriptions/{id}/documents", handleList[service.ListPrescriptionDocuments, document.Info](d,
			func(r *http.Request) service.ListPrescriptionDocuments {
				return service.ListPrescriptionDocuments{PrescriptionID: urlParam(r, "id")}
			}))
		r.Post("/prescriptions/{id}/documents", h.AttachDocument)
		r.Get("/prescriptions/{id}/documents/{docID}", h.GetDocument)

		// Reports
		r.Get("/reports/utilization", h.UtilizationReport)
	})
}
