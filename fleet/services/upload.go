package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"crewcert/fleet/schema"
	"crewcert/fleet/storage"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadService is the public portal behind the emailed request links. The
// token is the only credential, no session or login is involved, so every
// handler resolves and checks the request first.
type UploadService struct {
	db    *gorm.DB
	store storage.Storage
}

func (s *UploadService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{token}", func(r chi.Router) {
		r.Get("/", s.GetPortal)
		r.Post("/certificates", s.SubmitCertificate)
		r.Post("/complete", s.Complete)
	})

	return r
}

// resolveRequest maps token problems onto distinct statuses: unknown tokens
// are indistinguishable from never-issued ones (404), expired links are gone
// (410), and finished requests conflict (409).
func (s *UploadService) resolveRequest(txn *gorm.DB, token string) (schema.CertificateRequest, error) {
	request, err := schema.GetRequestByToken(token, txn)
	if err != nil {
		if errors.Is(err, schema.ErrRequestNotFound) {
			return schema.CertificateRequest{}, CodedError(err, http.StatusNotFound)
		}
		return schema.CertificateRequest{}, CodedError(err, http.StatusInternalServerError)
	}

	if request.IsExpired(time.Now().UTC()) {
		return schema.CertificateRequest{}, CodedError(errors.New("this upload link has expired"), http.StatusGone)
	}
	if request.Status == schema.RequestSubmitted {
		return schema.CertificateRequest{}, CodedError(errors.New("this upload request has already been submitted"), http.StatusConflict)
	}

	return request, nil
}

type portalRequirement struct {
	CertificateTypeId uuid.UUID                 `json:"certificate_type_id"`
	Code              string                    `json:"code"`
	Name              string                    `json:"name"`
	Level             schema.RequirementLevel   `json:"level"`
	CurrentStatus     *schema.CertificateStatus `json:"current_status"`
}

type portalResponse struct {
	CrewName     string              `json:"crew_name"`
	VesselName   string              `json:"vessel_name"`
	ExpiresAt    time.Time           `json:"expires_at"`
	Requirements []portalRequirement `json:"requirements"`
}

func (s *UploadService) GetPortal(w http.ResponseWriter, r *http.Request) {
	token, err := utils.URLParam(r, "token")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request, err := s.resolveRequest(s.db, token)
	if err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	crewMember, err := schema.GetCrewMember(request.CrewMemberId, s.db, true)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading upload portal: %v", err), http.StatusInternalServerError)
		return
	}

	vesselName := ""
	if vessel, err := schema.GetVessel(crewMember.VesselId, s.db); err == nil {
		vesselName = vessel.Name
	}

	requirements, err := s.memberRequirements(s.db, &crewMember)
	if err != nil {
		http.Error(w, fmt.Sprintf("error loading upload portal: %v", err), GetResponseCode(err))
		return
	}

	certsByType := map[uuid.UUID]schema.CertificateStatus{}
	for _, cert := range crewMember.Certificates {
		certsByType[cert.CertificateTypeId] = cert.Status
	}

	infos := make([]portalRequirement, 0, len(requirements))
	for _, req := range requirements {
		info := portalRequirement{
			CertificateTypeId: req.CertificateTypeId,
			Level:             req.Level,
		}
		if req.CertificateType != nil {
			info.Code = req.CertificateType.Code
			info.Name = req.CertificateType.Name
		}
		if status, ok := certsByType[req.CertificateTypeId]; ok {
			info.CurrentStatus = &status
		}
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, portalResponse{
		CrewName:     crewMember.FullName(),
		VesselName:   vesselName,
		ExpiresAt:    request.ExpiresAt,
		Requirements: infos,
	})
}

func (s *UploadService) memberRequirements(txn *gorm.DB, crewMember *schema.CrewMember) ([]schema.MatrixRequirement, error) {
	var requirements []schema.MatrixRequirement
	result := txn.Preload("CertificateType").
		Where("vessel_id = ? AND role_id = ?", crewMember.VesselId, crewMember.RoleId).
		Find(&requirements)
	if result.Error != nil {
		slog.Error("sql error listing requirements for upload portal", "crew_member_id", crewMember.Id, "error", result.Error)
		return nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	return requirements, nil
}

// SubmitCertificate accepts one certificate with its document via the portal.
// The certificate type must appear in the crew member's requirement matrix,
// crew cannot push arbitrary documents through the public endpoint.
func (s *UploadService) SubmitCertificate(w http.ResponseWriter, r *http.Request) {
	token, err := utils.URLParam(r, "token")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	typeIdValue := r.FormValue("certificate_type_id")
	typeId, err := uuid.Parse(typeIdValue)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid certificate_type_id: %v", err), http.StatusBadRequest)
		return
	}

	params := certificateRequest{
		CertificateTypeId: typeId,
		CertificateNumber: r.FormValue("certificate_number"),
		IssueDate:         r.FormValue("issue_date"),
		ExpiryDate:        r.FormValue("expiry_date"),
	}

	newCert := schema.Certificate{Id: uuid.New(), Status: schema.CertPending}
	staleDocument := ""

	err = s.db.Transaction(func(txn *gorm.DB) error {
		request, err := s.resolveRequest(txn, token)
		if err != nil {
			return err
		}

		crewMember, err := schema.GetCrewMember(request.CrewMemberId, txn, false)
		if err != nil {
			return CodedError(err, http.StatusInternalServerError)
		}

		requirements, err := s.memberRequirements(txn, &crewMember)
		if err != nil {
			return err
		}
		required := false
		for _, req := range requirements {
			if req.CertificateTypeId == typeId {
				required = true
				break
			}
		}
		if !required {
			return CodedError(errors.New("certificate type is not required for this crew member"), http.StatusForbidden)
		}

		issue, expiry, err := params.checkDates()
		if err != nil {
			return err
		}

		newCert.CrewMemberId = crewMember.Id
		newCert.CertificateTypeId = typeId
		newCert.CertificateNumber = params.CertificateNumber
		newCert.IssueDate = issue
		newCert.ExpiryDate = expiry

		// A crew member holds at most one certificate per type. A
		// resubmission replaces the existing row in place instead of
		// stacking a second one next to it.
		var existing schema.Certificate
		result := txn.Limit(1).Find(&existing, "crew_member_id = ? AND certificate_type_id = ?", crewMember.Id, typeId)
		if result.Error != nil {
			slog.Error("sql error checking for existing certificate via portal", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result.RowsAffected != 0 {
			newCert.Id = existing.Id
		} else {
			result = txn.Create(&newCert)
			if result.Error != nil {
				slog.Error("sql error creating certificate via portal", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		path, contentType, size, err := saveDocument(r, s.store, newCert.Id)
		if err != nil {
			return err
		}

		result = txn.Model(&schema.Certificate{Id: newCert.Id}).Updates(map[string]interface{}{
			"certificate_number":    params.CertificateNumber,
			"issue_date":            issue,
			"expiry_date":           expiry,
			"status":                schema.CertPending,
			"verified_at":           nil,
			"verified_by_id":        nil,
			"rejection_reason":      "",
			"extracted_data":        nil,
			"document_path":         path,
			"document_content_type": contentType,
			"document_size":         size,
		})
		if result.Error != nil {
			slog.Error("sql error recording portal document", "certificate_id", newCert.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if existing.DocumentPath != "" && existing.DocumentPath != path {
			staleDocument = existing.DocumentPath
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error submitting certificate: %v", err), GetResponseCode(err))
		return
	}

	if staleDocument != "" {
		if err := s.store.Delete(staleDocument); err != nil {
			slog.Error("error deleting replaced certificate document", "certificate_id", newCert.Id, "error", err)
		}
	}

	slog.Info("certificate submitted via upload portal", "certificate_id", newCert.Id)

	utils.WriteJsonResponse(w, createCertificateResponse{CertificateId: newCert.Id})
}

// Complete marks the request submitted, retiring the token.
func (s *UploadService) Complete(w http.ResponseWriter, r *http.Request) {
	token, err := utils.URLParam(r, "token")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		request, err := s.resolveRequest(txn, token)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		result := txn.Model(&schema.CertificateRequest{Id: request.Id}).Updates(map[string]interface{}{
			"status":       schema.RequestSubmitted,
			"submitted_at": now,
		})
		if result.Error != nil {
			slog.Error("sql error completing certificate request", "request_id", request.Id, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error completing upload: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
