package compliance

import (
	"fmt"
	"time"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
)

type AlertSeverity string

const (
	SeverityHigh    AlertSeverity = "high"
	SeverityWarning AlertSeverity = "warning"
)

type Alert struct {
	Severity AlertSeverity `json:"severity"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	CrewIds  []uuid.UUID   `json:"crew_member_ids"`
}

// CrewDetail is the per crew member report record. Counts are on a mandatory
// only basis, matching the readiness grid's statistics for the same inputs.
// Compliant here is the canonical reporting definition: no missing mandatory
// certificate types and no currently expired certificates.
type CrewDetail struct {
	CrewMemberId   uuid.UUID   `json:"crew_member_id"`
	Name           string      `json:"name"`
	RoleName       string      `json:"role_name"`
	Compliant      bool        `json:"compliant"`
	RequiredCount  int         `json:"required_count"`
	VerifiedCount  int         `json:"verified_count"`
	MissingCount   int         `json:"missing_count"`
	ExpiredCount   int         `json:"expired_count"`
	ExpiringCount  int         `json:"expiring_count"`
	MissingTypeIds []uuid.UUID `json:"missing_certificate_type_ids"`

	ExpiredCertificateIds  []uuid.UUID `json:"expired_certificate_ids"`
	ExpiringCertificateIds []uuid.UUID `json:"expiring_certificate_ids"`
}

type CertificateTotals struct {
	TotalRequired int `json:"total_required"`
	Verified      int `json:"verified"`
	Pending       int `json:"pending"`
	Missing       int `json:"missing"`
	Expired       int `json:"expired"`
	ExpiringSoon  int `json:"expiring_soon"`
}

type VesselReport struct {
	VesselId uuid.UUID `json:"vessel_id"`

	TotalCrew        int `json:"total_crew"`
	CompliantCrew    int `json:"compliant_crew"`
	NonCompliantCrew int `json:"non_compliant_crew"`

	// Crew level percentage: fraction of crew members individually fully
	// compliant. Distinct from the cell level percentage in VesselStats.
	CompliancePercentage float64 `json:"compliance_percentage"`

	Certificates CertificateTotals `json:"certificates"`
	CrewDetails  []CrewDetail      `json:"crew_details"`
	Alerts       []Alert           `json:"alerts"`
}

// BuildReport produces the vessel compliance report. Crew members must have
// certificates preloaded, requirements are the vessel's matrix rows.
func BuildReport(vesselId uuid.UUID, crewMembers []schema.CrewMember, requirements []schema.MatrixRequirement, today time.Time) VesselReport {
	report := VesselReport{
		VesselId:    vesselId,
		TotalCrew:   len(crewMembers),
		CrewDetails: make([]CrewDetail, 0, len(crewMembers)),
		Alerts:      []Alert{},
	}

	if len(crewMembers) == 0 {
		report.CompliancePercentage = 100.0
		return report
	}

	for i := range crewMembers {
		detail := crewDetail(&crewMembers[i], requirements, today)
		if detail.Compliant {
			report.CompliantCrew++
		}

		report.Certificates.TotalRequired += detail.RequiredCount
		report.Certificates.Verified += detail.VerifiedCount
		report.Certificates.Missing += detail.MissingCount
		report.Certificates.Expired += detail.ExpiredCount
		report.Certificates.ExpiringSoon += detail.ExpiringCount

		for _, cert := range crewMembers[i].Certificates {
			if cert.Status == schema.CertPending || cert.Status == schema.CertProcessing {
				report.Certificates.Pending++
			}
		}

		report.CrewDetails = append(report.CrewDetails, detail)
	}

	report.NonCompliantCrew = report.TotalCrew - report.CompliantCrew
	report.CompliancePercentage = roundTo1(float64(report.CompliantCrew) / float64(report.TotalCrew) * 100)
	report.Alerts = buildAlerts(report.CrewDetails)

	return report
}

func crewDetail(cm *schema.CrewMember, requirements []schema.MatrixRequirement, today time.Time) CrewDetail {
	resolver := NewResolver(*cm, requirements, cm.Certificates, today)

	mandatoryIds := resolver.MandatoryTypeIds()
	missingIds := resolver.MissingMandatoryTypeIds()

	verifiedCount := 0
	for _, id := range mandatoryIds {
		if resolver.HasVerified(id) {
			verifiedCount++
		}
	}

	detail := CrewDetail{
		CrewMemberId:           cm.Id,
		Name:                   cm.FullName(),
		RequiredCount:          len(mandatoryIds),
		VerifiedCount:          verifiedCount,
		MissingCount:           len(missingIds),
		MissingTypeIds:         missingIds,
		ExpiredCertificateIds:  []uuid.UUID{},
		ExpiringCertificateIds: []uuid.UUID{},
	}
	if cm.Role != nil {
		detail.RoleName = cm.Role.Name
	}

	for _, cert := range cm.Certificates {
		if cert.Expired(today) {
			detail.ExpiredCount++
			detail.ExpiredCertificateIds = append(detail.ExpiredCertificateIds, cert.Id)
		} else if cert.ExpiringSoon(today) {
			detail.ExpiringCount++
			detail.ExpiringCertificateIds = append(detail.ExpiringCertificateIds, cert.Id)
		}
	}

	detail.Compliant = len(missingIds) == 0 && detail.ExpiredCount == 0

	return detail
}

func buildAlerts(details []CrewDetail) []Alert {
	alerts := []Alert{}

	expired := crewIdsWhere(details, func(d CrewDetail) bool { return d.ExpiredCount > 0 })
	if len(expired) > 0 {
		alerts = append(alerts, Alert{
			Severity: SeverityHigh,
			Title:    "Expired Certificates",
			Message:  fmt.Sprintf("%d crew member(s) have expired certificates", len(expired)),
			CrewIds:  expired,
		})
	}

	expiring := crewIdsWhere(details, func(d CrewDetail) bool { return d.ExpiringCount > 0 })
	if len(expiring) > 0 {
		alerts = append(alerts, Alert{
			Severity: SeverityWarning,
			Title:    "Certificates Expiring Soon",
			Message:  fmt.Sprintf("%d crew member(s) have certificates expiring within 30 days", len(expiring)),
			CrewIds:  expiring,
		})
	}

	missing := crewIdsWhere(details, func(d CrewDetail) bool { return d.MissingCount > 0 })
	if len(missing) > 0 {
		alerts = append(alerts, Alert{
			Severity: SeverityHigh,
			Title:    "Missing Certificates",
			Message:  fmt.Sprintf("%d crew member(s) are missing required certificates", len(missing)),
			CrewIds:  missing,
		})
	}

	return alerts
}

func crewIdsWhere(details []CrewDetail, pred func(CrewDetail) bool) []uuid.UUID {
	ids := make([]uuid.UUID, 0)
	for _, d := range details {
		if pred(d) {
			ids = append(ids, d.CrewMemberId)
		}
	}
	return ids
}
