package services

import (
	"fmt"
	"log/slog"
	"net/http"

	"crewcert/fleet/auth"
	"crewcert/fleet/schema"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type DashboardService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *DashboardService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Get("/stats", s.Stats)

	return r
}

type dashboardStats struct {
	Vessels       int64 `json:"vessels"`
	CrewMembers   int64 `json:"crew_members"`
	Certificates  int64 `json:"certificates"`
	PendingReview int64 `json:"pending_review"`
	Expired       int64 `json:"expired"`
	ExpiringSoon  int64 `json:"expiring_soon"`
}

// Stats is the fleet wide home page summary. Counts come straight from the
// certificate scopes so the figures always agree with the list filters.
func (s *DashboardService) Stats(w http.ResponseWriter, r *http.Request) {
	today := utils.Today()

	var stats dashboardStats

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.Vessels, s.db.Model(&schema.Vessel{})},
		{&stats.CrewMembers, s.db.Model(&schema.CrewMember{})},
		{&stats.Certificates, s.db.Model(&schema.Certificate{})},
		{&stats.PendingReview, schema.PendingReviewCerts(s.db.Model(&schema.Certificate{}))},
		{&stats.Expired, schema.ExpiredCerts(s.db.Model(&schema.Certificate{}), today)},
		{&stats.ExpiringSoon, schema.ExpiringSoonCerts(s.db.Model(&schema.Certificate{}), today)},
	}

	for _, count := range counts {
		if result := count.query.Count(count.dest); result.Error != nil {
			slog.Error("sql error computing dashboard stats", "error", result.Error)
			http.Error(w, fmt.Sprintf("error computing stats: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
			return
		}
	}

	utils.WriteJsonResponse(w, stats)
}
