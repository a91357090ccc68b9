package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"crewcert/fleet/auth"
	"crewcert/fleet/compliance"
	"crewcert/fleet/schema"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

type VesselService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	requests *RequestService
}

func (s *VesselService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.CreateVessel)
	r.Get("/list", s.List)

	r.Route("/{vessel_id}", func(r chi.Router) {
		r.Get("/", s.GetVessel)
		r.Post("/update", s.UpdateVessel)
		r.With(auth.AdminOnly(s.db)).Delete("/", s.DeleteVessel)

		r.Get("/readiness", s.Readiness)
		r.Get("/report", s.Report)

		r.Post("/requests/send", s.SendRequests)
	})

	return r
}

var imoPattern = regexp.MustCompile(`^\d{7}$`)

type vesselRequest struct {
	Name              string `json:"name" validate:"required,max=255"`
	Imo               string `json:"imo"`
	ManagementCompany string `json:"management_company" validate:"max=255"`
}

func (p *vesselRequest) checkImo() error {
	if p.Imo != "" && !imoPattern.MatchString(p.Imo) {
		return CodedError(&ValidationError{
			Fields: map[string]string{"imo": "must be a 7 digit IMO number"},
		}, http.StatusUnprocessableEntity)
	}
	return nil
}

func (p *vesselRequest) imoValue() *string {
	if p.Imo == "" {
		return nil
	}
	return &p.Imo
}

type createVesselResponse struct {
	VesselId uuid.UUID `json:"vessel_id"`
}

func (s *VesselService) CreateVessel(w http.ResponseWriter, r *http.Request) {
	var params vesselRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	newVessel := schema.Vessel{
		Id:                uuid.New(),
		Name:              params.Name,
		Imo:               params.imoValue(),
		ManagementCompany: params.ManagementCompany,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRequestValid(&params); err != nil {
			return err
		}
		if err := params.checkImo(); err != nil {
			return err
		}

		if newVessel.Imo != nil {
			var existing schema.Vessel
			result := txn.Limit(1).Find(&existing, "imo = ?", *newVessel.Imo)
			if result.Error != nil {
				slog.Error("sql error checking for duplicate imo", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result.RowsAffected != 0 {
				return CodedError(fmt.Errorf("a vessel with IMO number %v already exists", *newVessel.Imo), http.StatusConflict)
			}
		}

		result := txn.Create(&newVessel)
		if result.Error != nil {
			slog.Error("sql error creating new vessel", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating vessel: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("created vessel", "vessel_id", newVessel.Id, "name", newVessel.Name)

	utils.WriteJsonResponse(w, createVesselResponse{VesselId: newVessel.Id})
}

type VesselInfo struct {
	Id                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Imo               *string   `json:"imo"`
	ManagementCompany string    `json:"management_company"`
	CrewCount         int       `json:"crew_count"`
}

func (s *VesselService) List(w http.ResponseWriter, r *http.Request) {
	var vessels []schema.Vessel
	result := s.db.Preload("CrewMembers").Order("name").Find(&vessels)
	if result.Error != nil {
		slog.Error("sql error listing vessels", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing vessels: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]VesselInfo, 0, len(vessels))
	for _, vessel := range vessels {
		infos = append(infos, VesselInfo{
			Id:                vessel.Id,
			Name:              vessel.Name,
			Imo:               vessel.Imo,
			ManagementCompany: vessel.ManagementCompany,
			CrewCount:         len(vessel.CrewMembers),
		})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *VesselService) GetVessel(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vessel, err := schema.GetVessel(vesselId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrVesselNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting vessel: %v", err), http.StatusInternalServerError)
		return
	}

	var crewCount int64
	result := s.db.Model(&schema.CrewMember{}).Where("vessel_id = ?", vesselId).Count(&crewCount)
	if result.Error != nil {
		slog.Error("sql error counting vessel crew", "vessel_id", vesselId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error getting vessel: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, VesselInfo{
		Id:                vessel.Id,
		Name:              vessel.Name,
		Imo:               vessel.Imo,
		ManagementCompany: vessel.ManagementCompany,
		CrewCount:         int(crewCount),
	})
}

func (s *VesselService) UpdateVessel(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params vesselRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVesselExists(txn, vesselId); err != nil {
			return err
		}
		if err := checkRequestValid(&params); err != nil {
			return err
		}
		if err := params.checkImo(); err != nil {
			return err
		}

		if params.Imo != "" {
			var existing schema.Vessel
			result := txn.Limit(1).Find(&existing, "imo = ? AND id != ?", params.Imo, vesselId)
			if result.Error != nil {
				slog.Error("sql error checking for duplicate imo", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			if result.RowsAffected != 0 {
				return CodedError(fmt.Errorf("a vessel with IMO number %v already exists", params.Imo), http.StatusConflict)
			}
		}

		result := txn.Model(&schema.Vessel{Id: vesselId}).Updates(map[string]interface{}{
			"name":               params.Name,
			"imo":                params.imoValue(),
			"management_company": params.ManagementCompany,
		})
		if result.Error != nil {
			slog.Error("sql error updating vessel", "vessel_id", vesselId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating vessel: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *VesselService) DeleteVessel(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkVesselExists(txn, vesselId); err != nil {
			return err
		}

		result := txn.Select("CrewMembers", "MatrixRequirements").Delete(&schema.Vessel{Id: vesselId})
		if result.Error != nil {
			slog.Error("sql error deleting vessel", "vessel_id", vesselId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting vessel: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("deleted vessel", "vessel_id", vesselId)

	utils.WriteSuccess(w)
}

type readinessRow struct {
	CrewMemberId uuid.UUID                   `json:"crew_member_id"`
	CrewName     string                      `json:"crew_name"`
	RoleName     string                      `json:"role_name"`
	Cells        map[uuid.UUID]readinessCell `json:"cells"`
}

type readinessCell struct {
	Status        compliance.CellStatus `json:"status"`
	Mandatory     bool                  `json:"mandatory"`
	CertificateId *uuid.UUID            `json:"certificate_id"`
}

type readinessResponse struct {
	VesselId uuid.UUID              `json:"vessel_id"`
	Rows     []readinessRow         `json:"rows"`
	Stats    compliance.VesselStats `json:"stats"`
}

func (s *VesselService) Readiness(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkVesselExists(s.db, vesselId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	crewMembers, requirements, err := loadVesselCompliance(s.db, vesselId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error building readiness: %v", err), GetResponseCode(err))
		return
	}

	matrix := compliance.BuildReadiness(crewMembers, requirements, utils.Today())

	rows := make([]readinessRow, 0, len(crewMembers))
	for _, cm := range crewMembers {
		row := readinessRow{
			CrewMemberId: cm.Id,
			CrewName:     cm.FullName(),
			Cells:        map[uuid.UUID]readinessCell{},
		}
		if cm.Role != nil {
			row.RoleName = cm.Role.Name
		}
		for typeId, cell := range matrix.Cells[cm.Id] {
			var certId *uuid.UUID
			if cell.Certificate != nil {
				certId = &cell.Certificate.Id
			}
			row.Cells[typeId] = readinessCell{
				Status:        cell.Status,
				Mandatory:     cell.Requirement.Mandatory(),
				CertificateId: certId,
			}
		}
		rows = append(rows, row)
	}

	utils.WriteJsonResponse(w, readinessResponse{
		VesselId: vesselId,
		Rows:     rows,
		Stats:    matrix.Stats(),
	})
}

func (s *VesselService) Report(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkVesselExists(s.db, vesselId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	crewMembers, requirements, err := loadVesselCompliance(s.db, vesselId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error building report: %v", err), GetResponseCode(err))
		return
	}

	timer := prometheus.NewTimer(reportBuilds)
	report := compliance.BuildReport(vesselId, crewMembers, requirements, utils.Today())
	timer.ObserveDuration()

	utils.WriteJsonResponse(w, report)
}

// SendRequests creates and mails an upload request for every crew member on
// the vessel, tolerating per member failures.
func (s *VesselService) SendRequests(w http.ResponseWriter, r *http.Request) {
	vesselId, err := utils.URLParamUUID(r, "vessel_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkVesselExists(s.db, vesselId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var crewMembers []schema.CrewMember
	result := s.db.Preload("Vessel").Where("vessel_id = ?", vesselId).Find(&crewMembers)
	if result.Error != nil {
		slog.Error("sql error listing crew for bulk request", "vessel_id", vesselId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error sending requests: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	summary := s.requests.SendBulk(crewMembers)

	slog.Info("bulk certificate request completed", "vessel_id", vesselId,
		"sent", summary.Sent, "failed", summary.Failed)

	utils.WriteJsonResponse(w, summary)
}
