package compliance

import (
	"testing"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func reportFixture() (uuid.UUID, []schema.CrewMember, []schema.MatrixRequirement) {
	vesselId := uuid.New()
	roleId := uuid.New()
	bst, coc := uuid.New(), uuid.New()

	requirements := []schema.MatrixRequirement{
		{VesselId: vesselId, RoleId: roleId, CertificateTypeId: bst, Level: schema.Mandatory},
		{VesselId: vesselId, RoleId: roleId, CertificateTypeId: coc, Level: schema.Mandatory},
	}

	crew := []schema.CrewMember{
		{
			// Fully compliant, one certificate merely expiring soon.
			Id: uuid.New(), VesselId: vesselId, RoleId: roleId,
			FirstName: "Elena", LastName: "Marsh",
			Certificates: []schema.Certificate{
				{Id: uuid.New(), CertificateTypeId: bst, Status: schema.CertVerified, ExpiryDate: datePtr(200)},
				{Id: uuid.New(), CertificateTypeId: coc, Status: schema.CertVerified, ExpiryDate: datePtr(10)},
			},
		},
		{
			// Holds both types but one is expired.
			Id: uuid.New(), VesselId: vesselId, RoleId: roleId,
			FirstName: "Tomas", LastName: "Reyes",
			Certificates: []schema.Certificate{
				{Id: uuid.New(), CertificateTypeId: bst, Status: schema.CertVerified, ExpiryDate: datePtr(200)},
				{Id: uuid.New(), CertificateTypeId: coc, Status: schema.CertVerified, ExpiryDate: datePtr(-5)},
			},
		},
		{
			// Missing one type entirely, the other pending review.
			Id: uuid.New(), VesselId: vesselId, RoleId: roleId,
			FirstName: "Ingrid", LastName: "Holt",
			Certificates: []schema.Certificate{
				{Id: uuid.New(), CertificateTypeId: bst, Status: schema.CertPending},
			},
		},
	}

	return vesselId, crew, requirements
}

func TestBuildReport(t *testing.T) {
	vesselId, crew, requirements := reportFixture()

	report := BuildReport(vesselId, crew, requirements, today)

	assert.Equal(t, vesselId, report.VesselId)
	assert.Equal(t, 3, report.TotalCrew)
	assert.Equal(t, 1, report.CompliantCrew)
	assert.Equal(t, 2, report.NonCompliantCrew)
	assert.InDelta(t, 33.3, report.CompliancePercentage, 0.01)

	assert.Equal(t, 6, report.Certificates.TotalRequired)
	assert.Equal(t, 4, report.Certificates.Verified)
	assert.Equal(t, 1, report.Certificates.Pending)
	assert.Equal(t, 2, report.Certificates.Missing)
	assert.Equal(t, 1, report.Certificates.Expired)
	assert.Equal(t, 1, report.Certificates.ExpiringSoon)

	byName := map[string]CrewDetail{}
	for _, d := range report.CrewDetails {
		byName[d.Name] = d
	}

	// Expiring soon does not break individual compliance.
	assert.True(t, byName["Elena Marsh"].Compliant)
	assert.Equal(t, 1, byName["Elena Marsh"].ExpiringCount)

	assert.False(t, byName["Tomas Reyes"].Compliant)
	assert.Equal(t, 0, byName["Tomas Reyes"].MissingCount)
	assert.Equal(t, 1, byName["Tomas Reyes"].ExpiredCount)

	assert.False(t, byName["Ingrid Holt"].Compliant)
	assert.Equal(t, 2, byName["Ingrid Holt"].MissingCount)
}

func TestReportAlerts(t *testing.T) {
	vesselId, crew, requirements := reportFixture()

	report := BuildReport(vesselId, crew, requirements, today)

	bySeverity := map[AlertSeverity][]Alert{}
	byTitle := map[string]Alert{}
	for _, alert := range report.Alerts {
		bySeverity[alert.Severity] = append(bySeverity[alert.Severity], alert)
		byTitle[alert.Title] = alert
	}

	assert.Len(t, bySeverity[SeverityHigh], 2)
	assert.Len(t, bySeverity[SeverityWarning], 1)

	assert.Equal(t, []uuid.UUID{crew[1].Id}, byTitle["Expired Certificates"].CrewIds)
	assert.Equal(t, []uuid.UUID{crew[0].Id}, byTitle["Certificates Expiring Soon"].CrewIds)
	assert.Equal(t, []uuid.UUID{crew[2].Id}, byTitle["Missing Certificates"].CrewIds)
}

func TestReportEmptyVessel(t *testing.T) {
	report := BuildReport(uuid.New(), nil, nil, today)

	assert.Equal(t, 0, report.TotalCrew)
	assert.Equal(t, 100.0, report.CompliancePercentage)
	assert.Empty(t, report.Alerts)
	assert.Empty(t, report.CrewDetails)
}
