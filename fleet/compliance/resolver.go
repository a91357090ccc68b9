// Package compliance implements the crew certification compliance engine:
// per crew member resolution, the vessel readiness grid, and report/alert
// generation. All computations are point in time snapshots over data loaded
// by the caller, nothing here touches the database.
package compliance

import (
	"math"
	"time"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
)

// Resolver answers compliance questions for a single crew member. The
// required, mandatory, and verified certificate type sets are computed once
// at construction and reused, the caller rebuilds the resolver whenever the
// member's certificates change.
type Resolver struct {
	crew  schema.CrewMember
	today time.Time

	requiredIds  []uuid.UUID
	mandatoryIds []uuid.UUID
	verifiedIds  map[uuid.UUID]struct{}
}

// NewResolver builds a resolver from the matrix rows for the member's
// (vessel, role) pair and the member's certificate records.
func NewResolver(crew schema.CrewMember, requirements []schema.MatrixRequirement, certificates []schema.Certificate, today time.Time) *Resolver {
	r := &Resolver{
		crew:        crew,
		today:       today,
		verifiedIds: make(map[uuid.UUID]struct{}),
	}

	seen := make(map[uuid.UUID]struct{}, len(requirements))
	for _, req := range requirements {
		if req.VesselId != crew.VesselId || req.RoleId != crew.RoleId {
			continue
		}
		if _, ok := seen[req.CertificateTypeId]; ok {
			continue
		}
		seen[req.CertificateTypeId] = struct{}{}
		r.requiredIds = append(r.requiredIds, req.CertificateTypeId)
		if req.Mandatory() {
			r.mandatoryIds = append(r.mandatoryIds, req.CertificateTypeId)
		}
	}

	// Membership is "ever verified", expiry is considered downstream by the
	// readiness grid and the report, not here.
	for _, cert := range certificates {
		if cert.Status == schema.CertVerified {
			r.verifiedIds[cert.CertificateTypeId] = struct{}{}
		}
	}

	return r
}

func (r *Resolver) RequiredTypeIds() []uuid.UUID {
	return r.requiredIds
}

func (r *Resolver) MandatoryTypeIds() []uuid.UUID {
	return r.mandatoryIds
}

func (r *Resolver) HasVerified(typeId uuid.UUID) bool {
	_, ok := r.verifiedIds[typeId]
	return ok
}

// MissingTypeIds is the required set minus the verified set.
func (r *Resolver) MissingTypeIds() []uuid.UUID {
	return r.subtractVerified(r.requiredIds)
}

// MissingMandatoryTypeIds is the mandatory set minus the verified set.
func (r *Resolver) MissingMandatoryTypeIds() []uuid.UUID {
	return r.subtractVerified(r.mandatoryIds)
}

// Compliant is the quick expiry-blind check: no mandatory certificate type
// is unverified. The readiness grid is authoritative for operational
// compliance, which does consider expiry.
func (r *Resolver) Compliant() bool {
	return len(r.MissingMandatoryTypeIds()) == 0
}

// CompliancePercentage is the fraction of required certificate types with a
// verified certificate, rounded to 1 decimal. 100.0 when nothing is required.
func (r *Resolver) CompliancePercentage() float64 {
	if len(r.requiredIds) == 0 {
		return 100.0
	}

	owned := 0
	for _, id := range r.requiredIds {
		if r.HasVerified(id) {
			owned++
		}
	}

	return roundTo1(float64(owned) / float64(len(r.requiredIds)) * 100)
}

func (r *Resolver) subtractVerified(ids []uuid.UUID) []uuid.UUID {
	missing := make([]uuid.UUID, 0)
	for _, id := range ids {
		if !r.HasVerified(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func roundTo1(value float64) float64 {
	return math.Round(value*10) / 10
}
