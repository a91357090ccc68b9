package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"crewcert/fleet/auth"
	"crewcert/fleet/schema"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CertificateTypeService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *CertificateTypeService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.CreateType)
	r.Get("/list", s.List)
	r.Get("/categories", s.Categories)

	r.Route("/{type_id}", func(r chi.Router) {
		r.Post("/update", s.UpdateType)
		r.With(auth.AdminOnly(s.db)).Delete("/", s.DeleteType)
	})

	return r
}

// Codes are uppercase alphanumeric with dashes and underscores, e.g.
// STCW-II/1 style refs collapse to STCW-II-1.
var codePattern = regexp.MustCompile(`^[A-Z0-9_][A-Z0-9_-]*$`)

type certificateTypeRequest struct {
	Code                 string `json:"code" validate:"required,max=50"`
	Name                 string `json:"name" validate:"required,max=255"`
	Description          string `json:"description"`
	ValidityPeriodMonths *int   `json:"validity_period_months" validate:"omitempty,gt=0"`
}

func (p *certificateTypeRequest) normalize() error {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	if !codePattern.MatchString(p.Code) {
		return CodedError(&ValidationError{
			Fields: map[string]string{"code": "must contain only uppercase letters, digits, dashes, and underscores"},
		}, http.StatusUnprocessableEntity)
	}
	return nil
}

type createCertificateTypeResponse struct {
	TypeId uuid.UUID `json:"type_id"`
}

func (s *CertificateTypeService) CreateType(w http.ResponseWriter, r *http.Request) {
	var params certificateTypeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	newType := schema.CertificateType{Id: uuid.New()}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRequestValid(&params); err != nil {
			return err
		}
		if err := params.normalize(); err != nil {
			return err
		}

		var existing schema.CertificateType
		result := txn.Limit(1).Find(&existing, "code = ?", params.Code)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate certificate type code", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("certificate type with code %v already exists", params.Code), http.StatusConflict)
		}

		newType.Code = params.Code
		newType.Name = params.Name
		newType.Description = params.Description
		newType.ValidityPeriodMonths = params.ValidityPeriodMonths

		result = txn.Create(&newType)
		if result.Error != nil {
			slog.Error("sql error creating new certificate type", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating certificate type: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createCertificateTypeResponse{TypeId: newType.Id})
}

type CertificateTypeInfo struct {
	Id                   uuid.UUID `json:"id"`
	Code                 string    `json:"code"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	ValidityPeriodMonths *int      `json:"validity_period_months"`
	Category             string    `json:"category"`
}

func typeInfo(ct schema.CertificateType) CertificateTypeInfo {
	return CertificateTypeInfo{
		Id:                   ct.Id,
		Code:                 ct.Code,
		Name:                 ct.Name,
		Description:          ct.Description,
		ValidityPeriodMonths: ct.ValidityPeriodMonths,
		Category:             ct.Category(),
	}
}

func (s *CertificateTypeService) List(w http.ResponseWriter, r *http.Request) {
	var types []schema.CertificateType
	result := s.db.Order("code").Find(&types)
	if result.Error != nil {
		slog.Error("sql error listing certificate types", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing certificate types: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CertificateTypeInfo, 0, len(types))
	for _, ct := range types {
		infos = append(infos, typeInfo(ct))
	}

	utils.WriteJsonResponse(w, infos)
}

// Categories returns the types grouped the way the matrix UI displays them.
func (s *CertificateTypeService) Categories(w http.ResponseWriter, r *http.Request) {
	var types []schema.CertificateType
	result := s.db.Order("code").Find(&types)
	if result.Error != nil {
		slog.Error("sql error listing certificate types", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing certificate types: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	grouped := map[string][]CertificateTypeInfo{}
	for _, ct := range types {
		info := typeInfo(ct)
		grouped[info.Category] = append(grouped[info.Category], info)
	}

	utils.WriteJsonResponse(w, grouped)
}

func (s *CertificateTypeService) UpdateType(w http.ResponseWriter, r *http.Request) {
	typeId, err := utils.URLParamUUID(r, "type_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params certificateTypeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCertificateTypeExists(txn, typeId); err != nil {
			return err
		}
		if err := checkRequestValid(&params); err != nil {
			return err
		}
		if err := params.normalize(); err != nil {
			return err
		}

		var existing schema.CertificateType
		result := txn.Limit(1).Find(&existing, "code = ? AND id != ?", params.Code, typeId)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate certificate type code", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("certificate type with code %v already exists", params.Code), http.StatusConflict)
		}

		result = txn.Model(&schema.CertificateType{Id: typeId}).Updates(map[string]interface{}{
			"code":                   params.Code,
			"name":                   params.Name,
			"description":            params.Description,
			"validity_period_months": params.ValidityPeriodMonths,
		})
		if result.Error != nil {
			slog.Error("sql error updating certificate type", "type_id", typeId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating certificate type: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *CertificateTypeService) DeleteType(w http.ResponseWriter, r *http.Request) {
	typeId, err := utils.URLParamUUID(r, "type_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkCertificateTypeExists(txn, typeId); err != nil {
			return err
		}

		var certCount int64
		result := txn.Model(&schema.Certificate{}).Where("certificate_type_id = ?", typeId).Count(&certCount)
		if result.Error != nil {
			slog.Error("sql error counting certificates for type", "type_id", typeId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if certCount != 0 {
			return CodedError(fmt.Errorf("certificate type is referenced by %v certificates and cannot be deleted", certCount), http.StatusConflict)
		}

		result = txn.Where("certificate_type_id = ?", typeId).Delete(&schema.MatrixRequirement{})
		if result.Error != nil {
			slog.Error("sql error deleting type requirements", "type_id", typeId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Delete(&schema.CertificateType{Id: typeId})
		if result.Error != nil {
			slog.Error("sql error deleting certificate type", "type_id", typeId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting certificate type: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
