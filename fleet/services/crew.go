package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"crewcert/fleet/auth"
	"crewcert/fleet/compliance"
	"crewcert/fleet/schema"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CrewService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *CrewService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.CreateCrewMember)
	r.Get("/list", s.List)

	r.Route("/{crew_member_id}", func(r chi.Router) {
		r.Get("/", s.GetCrewMember)
		r.Post("/update", s.UpdateCrewMember)
		r.Delete("/", s.DeleteCrewMember)

		r.Get("/compliance", s.Compliance)
	})

	return r
}

type crewMemberRequest struct {
	VesselId  uuid.UUID `json:"vessel_id" validate:"required"`
	RoleId    uuid.UUID `json:"role_id" validate:"required"`
	FirstName string    `json:"first_name" validate:"required,max=100"`
	LastName  string    `json:"last_name" validate:"required,max=100"`
	Email     string    `json:"email" validate:"required,email,max=254"`
	Phone     string    `json:"phone" validate:"max=50"`
}

type createCrewMemberResponse struct {
	CrewMemberId uuid.UUID `json:"crew_member_id"`
}

func (s *CrewService) CreateCrewMember(w http.ResponseWriter, r *http.Request) {
	var params crewMemberRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	// Emails are stored lowercased so uniqueness ignores case.
	email := strings.ToLower(strings.TrimSpace(params.Email))

	newMember := schema.CrewMember{
		Id:        uuid.New(),
		VesselId:  params.VesselId,
		RoleId:    params.RoleId,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Email:     email,
		Phone:     params.Phone,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRequestValid(&params); err != nil {
			return err
		}
		if err := checkVesselExists(txn, params.VesselId); err != nil {
			return err
		}
		if err := checkRoleExists(txn, params.RoleId); err != nil {
			return err
		}

		var existing schema.CrewMember
		result := txn.Limit(1).Find(&existing, "email = ?", email)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate crew email", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("a crew member with email %v already exists", email), http.StatusConflict)
		}

		result = txn.Create(&newMember)
		if result.Error != nil {
			slog.Error("sql error creating new crew member", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating crew member: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createCrewMemberResponse{CrewMemberId: newMember.Id})
}

type CrewMemberInfo struct {
	Id        uuid.UUID `json:"id"`
	VesselId  uuid.UUID `json:"vessel_id"`
	RoleId    uuid.UUID `json:"role_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	RoleName  string    `json:"role_name,omitempty"`
}

func crewMemberInfo(cm schema.CrewMember) CrewMemberInfo {
	info := CrewMemberInfo{
		Id:        cm.Id,
		VesselId:  cm.VesselId,
		RoleId:    cm.RoleId,
		FirstName: cm.FirstName,
		LastName:  cm.LastName,
		FullName:  cm.FullName(),
		Email:     cm.Email,
		Phone:     cm.Phone,
	}
	if cm.Role != nil {
		info.RoleName = cm.Role.Name
	}
	return info
}

func (s *CrewService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db.Preload("Role").Order("last_name, first_name")

	if vessel := r.URL.Query().Get("vessel_id"); vessel != "" {
		vesselId, err := uuid.Parse(vessel)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid vessel_id filter: %v", err), http.StatusBadRequest)
			return
		}
		query = query.Where("vessel_id = ?", vesselId)
	}

	var crewMembers []schema.CrewMember
	result := query.Find(&crewMembers)
	if result.Error != nil {
		slog.Error("sql error listing crew members", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing crew members: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CrewMemberInfo, 0, len(crewMembers))
	for _, cm := range crewMembers {
		infos = append(infos, crewMemberInfo(cm))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *CrewService) GetCrewMember(w http.ResponseWriter, r *http.Request) {
	crewMemberId, err := utils.URLParamUUID(r, "crew_member_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	crewMember, err := schema.GetCrewMember(crewMemberId, s.db, false)
	if err != nil {
		if errors.Is(err, schema.ErrCrewMemberNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting crew member: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, crewMemberInfo(crewMember))
}

func (s *CrewService) UpdateCrewMember(w http.ResponseWriter, r *http.Request) {
	crewMemberId, err := utils.URLParamUUID(r, "crew_member_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params crewMemberRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCrewMemberExists(txn, crewMemberId); err != nil {
			return err
		}
		if err := checkRequestValid(&params); err != nil {
			return err
		}
		if err := checkVesselExists(txn, params.VesselId); err != nil {
			return err
		}
		if err := checkRoleExists(txn, params.RoleId); err != nil {
			return err
		}

		var existing schema.CrewMember
		result := txn.Limit(1).Find(&existing, "email = ? AND id != ?", email, crewMemberId)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate crew email", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("a crew member with email %v already exists", email), http.StatusConflict)
		}

		result = txn.Model(&schema.CrewMember{Id: crewMemberId}).Updates(map[string]interface{}{
			"vessel_id":  params.VesselId,
			"role_id":    params.RoleId,
			"first_name": params.FirstName,
			"last_name":  params.LastName,
			"email":      email,
			"phone":      params.Phone,
		})
		if result.Error != nil {
			slog.Error("sql error updating crew member", "crew_member_id", crewMemberId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating crew member: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CrewService) DeleteCrewMember(w http.ResponseWriter, r *http.Request) {
	crewMemberId, err := utils.URLParamUUID(r, "crew_member_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCrewMemberExists(txn, crewMemberId); err != nil {
			return err
		}

		result := txn.Select("Certificates", "CertificateRequests").Delete(&schema.CrewMember{Id: crewMemberId})
		if result.Error != nil {
			slog.Error("sql error deleting crew member", "crew_member_id", crewMemberId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting crew member: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type crewComplianceResponse struct {
	CrewMemberId            uuid.UUID   `json:"crew_member_id"`
	Compliant               bool        `json:"compliant"`
	CompliancePercentage    float64     `json:"compliance_percentage"`
	RequiredTypeIds         []uuid.UUID `json:"required_type_ids"`
	MissingTypeIds          []uuid.UUID `json:"missing_type_ids"`
	MissingMandatoryTypeIds []uuid.UUID `json:"missing_mandatory_type_ids"`
}

// Compliance reports the crew member against the matrix for their current
// vessel and role. Holding a verified certificate satisfies a requirement
// here, expiry is the report's concern.
func (s *CrewService) Compliance(w http.ResponseWriter, r *http.Request) {
	crewMemberId, err := utils.URLParamUUID(r, "crew_member_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	crewMember, err := schema.GetCrewMember(crewMemberId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrCrewMemberNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting crew member: %v", err), http.StatusInternalServerError)
		return
	}

	var requirements []schema.MatrixRequirement
	result := s.db.Where("vessel_id = ? AND role_id = ?", crewMember.VesselId, crewMember.RoleId).Find(&requirements)
	if result.Error != nil {
		slog.Error("sql error listing requirements for crew member", "crew_member_id", crewMemberId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error resolving compliance: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	resolver := compliance.NewResolver(crewMember, requirements, crewMember.Certificates, utils.Today())

	utils.WriteJsonResponse(w, crewComplianceResponse{
		CrewMemberId:            crewMemberId,
		Compliant:               resolver.Compliant(),
		CompliancePercentage:    resolver.CompliancePercentage(),
		RequiredTypeIds:         resolver.RequiredTypeIds(),
		MissingTypeIds:          resolver.MissingTypeIds(),
		MissingMandatoryTypeIds: resolver.MissingMandatoryTypeIds(),
	})
}
