package compliance

import (
	"math"
	"time"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
)

// CellStatus classifies one (crew member, required certificate type) pairing.
type CellStatus string

const (
	CellMissing      CellStatus = "missing"
	CellRejected     CellStatus = "rejected"
	CellPending      CellStatus = "pending"
	CellExpired      CellStatus = "expired"
	CellExpiringSoon CellStatus = "expiring_soon"
	CellValid        CellStatus = "valid"
)

// ClassifyCell is a total function: every pair yields exactly one status,
// first match wins.
func ClassifyCell(cert *schema.Certificate, today time.Time) CellStatus {
	switch {
	case cert == nil:
		return CellMissing
	case cert.Status == schema.CertRejected:
		return CellRejected
	case cert.Status == schema.CertPending || cert.Status == schema.CertProcessing:
		return CellPending
	case cert.Expired(today):
		return CellExpired
	case cert.ExpiringSoon(today):
		return CellExpiringSoon
	default:
		return CellValid
	}
}

type Cell struct {
	Status      CellStatus
	Certificate *schema.Certificate
	Requirement schema.MatrixRequirement
}

// ReadinessMatrix is the full crew x required certificate type grid for a
// vessel, keyed by crew member id then certificate type id.
type ReadinessMatrix struct {
	Cells map[uuid.UUID]map[uuid.UUID]Cell
}

// VesselStats aggregates mandatory cells only. ExpiringSoon cells count as
// compliant, the holder is not yet out of compliance. Rejected cells share
// the expired bucket.
type VesselStats struct {
	TotalRequired int `json:"total_required"`
	Compliant     int `json:"compliant"`
	Missing       int `json:"missing"`
	Expired       int `json:"expired"`
	Expiring      int `json:"expiring"`
	Pending       int `json:"pending"`
	Percentage    int `json:"percentage"`
}

// BuildReadiness classifies every (crew member, required certificate type)
// pair. Crew members must have their certificates preloaded, requirements
// are the matrix rows for the vessel restricted to roles present on it.
func BuildReadiness(crewMembers []schema.CrewMember, requirements []schema.MatrixRequirement, today time.Time) ReadinessMatrix {
	requirementsByRole := make(map[uuid.UUID][]schema.MatrixRequirement)
	for _, req := range requirements {
		requirementsByRole[req.RoleId] = append(requirementsByRole[req.RoleId], req)
	}

	matrix := ReadinessMatrix{Cells: make(map[uuid.UUID]map[uuid.UUID]Cell, len(crewMembers))}

	for i := range crewMembers {
		cm := &crewMembers[i]

		certsByType := make(map[uuid.UUID]*schema.Certificate, len(cm.Certificates))
		for j := range cm.Certificates {
			certsByType[cm.Certificates[j].CertificateTypeId] = &cm.Certificates[j]
		}

		row := make(map[uuid.UUID]Cell)
		for _, req := range requirementsByRole[cm.RoleId] {
			cert := certsByType[req.CertificateTypeId]
			row[req.CertificateTypeId] = Cell{
				Status:      ClassifyCell(cert, today),
				Certificate: cert,
				Requirement: req,
			}
		}
		matrix.Cells[cm.Id] = row
	}

	return matrix
}

// Stats rolls the grid up into vessel level compliance statistics over
// mandatory cells. Percentage uses integer rounding and is 100 when no
// mandatory cells exist.
func (m ReadinessMatrix) Stats() VesselStats {
	var stats VesselStats

	for _, row := range m.Cells {
		for _, cell := range row {
			if !cell.Requirement.Mandatory() {
				continue
			}
			stats.TotalRequired++

			switch cell.Status {
			case CellValid:
				stats.Compliant++
			case CellMissing:
				stats.Missing++
			case CellExpired, CellRejected:
				stats.Expired++
			case CellExpiringSoon:
				stats.Expiring++
				stats.Compliant++
			case CellPending:
				stats.Pending++
			}
		}
	}

	if stats.TotalRequired == 0 {
		stats.Percentage = 100
	} else {
		stats.Percentage = int(math.Round(float64(stats.Compliant) / float64(stats.TotalRequired) * 100))
	}

	return stats
}
