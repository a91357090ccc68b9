package compliance

import (
	"testing"
	"time"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var today = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func datePtr(daysFromToday int) *time.Time {
	d := today.AddDate(0, 0, daysFromToday)
	return &d
}

func TestClassifyCell(t *testing.T) {
	cases := []struct {
		name string
		cert *schema.Certificate
		want CellStatus
	}{
		{"no certificate", nil, CellMissing},
		{"rejected", &schema.Certificate{Status: schema.CertRejected}, CellRejected},
		{"pending", &schema.Certificate{Status: schema.CertPending}, CellPending},
		{"processing", &schema.Certificate{Status: schema.CertProcessing}, CellPending},
		{"verified expired", &schema.Certificate{Status: schema.CertVerified, ExpiryDate: datePtr(-1)}, CellExpired},
		{"verified expiring today", &schema.Certificate{Status: schema.CertVerified, ExpiryDate: datePtr(0)}, CellExpiringSoon},
		{"verified expiring in window", &schema.Certificate{Status: schema.CertVerified, ExpiryDate: datePtr(30)}, CellExpiringSoon},
		{"verified beyond window", &schema.Certificate{Status: schema.CertVerified, ExpiryDate: datePtr(31)}, CellValid},
		{"verified no expiry", &schema.Certificate{Status: schema.CertVerified}, CellValid},
		// Review status wins over dates: a rejected certificate with a past
		// expiry is rejected, not expired.
		{"rejected and expired", &schema.Certificate{Status: schema.CertRejected, ExpiryDate: datePtr(-100)}, CellRejected},
		{"pending and expired", &schema.Certificate{Status: schema.CertPending, ExpiryDate: datePtr(-100)}, CellPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyCell(tc.cert, today))
		})
	}
}

func TestReadinessStats(t *testing.T) {
	vesselId := uuid.New()
	roleId := uuid.New()

	typeIds := make([]uuid.UUID, 5)
	for i := range typeIds {
		typeIds[i] = uuid.New()
	}

	requirements := []schema.MatrixRequirement{
		{Id: uuid.New(), VesselId: vesselId, RoleId: roleId, CertificateTypeId: typeIds[0], Level: schema.Mandatory},
		{Id: uuid.New(), VesselId: vesselId, RoleId: roleId, CertificateTypeId: typeIds[1], Level: schema.Mandatory},
		{Id: uuid.New(), VesselId: vesselId, RoleId: roleId, CertificateTypeId: typeIds[2], Level: schema.Mandatory},
		{Id: uuid.New(), VesselId: vesselId, RoleId: roleId, CertificateTypeId: typeIds[3], Level: schema.Mandatory},
		// Optional cells never enter the statistics.
		{Id: uuid.New(), VesselId: vesselId, RoleId: roleId, CertificateTypeId: typeIds[4], Level: schema.Optional},
	}

	crew := []schema.CrewMember{{
		Id:       uuid.New(),
		VesselId: vesselId,
		RoleId:   roleId,
		Certificates: []schema.Certificate{
			{Id: uuid.New(), CertificateTypeId: typeIds[0], Status: schema.CertVerified, ExpiryDate: datePtr(200)},
			{Id: uuid.New(), CertificateTypeId: typeIds[1], Status: schema.CertVerified, ExpiryDate: datePtr(10)},
			{Id: uuid.New(), CertificateTypeId: typeIds[2], Status: schema.CertRejected},
			// typeIds[3] has no certificate at all.
		},
	}}

	matrix := BuildReadiness(crew, requirements, today)
	stats := matrix.Stats()

	assert.Equal(t, 4, stats.TotalRequired)
	// The expiring soon certificate still counts as compliant.
	assert.Equal(t, 2, stats.Compliant)
	assert.Equal(t, 1, stats.Expiring)
	// Rejected certificates land in the expired bucket.
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 50, stats.Percentage)
}

func TestReadinessStatsEmpty(t *testing.T) {
	matrix := BuildReadiness(nil, nil, today)
	stats := matrix.Stats()

	assert.Equal(t, 0, stats.TotalRequired)
	assert.Equal(t, 100, stats.Percentage)
}

func TestReadinessOnlyUsesOwnRoleRequirements(t *testing.T) {
	vesselId := uuid.New()
	masterRole, seamanRole := uuid.New(), uuid.New()
	typeId := uuid.New()

	requirements := []schema.MatrixRequirement{
		{Id: uuid.New(), VesselId: vesselId, RoleId: masterRole, CertificateTypeId: typeId, Level: schema.Mandatory},
	}

	crew := []schema.CrewMember{
		{Id: uuid.New(), VesselId: vesselId, RoleId: masterRole},
		{Id: uuid.New(), VesselId: vesselId, RoleId: seamanRole},
	}

	matrix := BuildReadiness(crew, requirements, today)

	assert.Len(t, matrix.Cells[crew[0].Id], 1)
	assert.Empty(t, matrix.Cells[crew[1].Id])
}
