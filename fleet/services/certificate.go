package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"crewcert/fleet/auth"
	"crewcert/fleet/jobs"
	"crewcert/fleet/schema"
	"crewcert/fleet/storage"
	"crewcert/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxDocumentSize = 10 << 20 // 10 MiB

var allowedDocumentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

type CertificateService struct {
	db         *gorm.DB
	userAuth   auth.IdentityProvider
	store      storage.Storage
	extraction *jobs.ExtractionRunner
}

func (s *CertificateService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.CreateCertificate)
	r.Get("/list", s.List)

	r.Route("/{certificate_id}", func(r chi.Router) {
		r.Get("/", s.GetCertificate)
		r.Delete("/", s.DeleteCertificate)

		r.Post("/document", s.UploadDocument)
		r.Get("/document", s.DownloadDocument)

		r.Post("/verify", s.Verify)
		r.Post("/reject", s.Reject)
		r.Post("/extract", s.Extract)
	})

	return r
}

type certificateRequest struct {
	CrewMemberId      uuid.UUID `json:"crew_member_id" validate:"required"`
	CertificateTypeId uuid.UUID `json:"certificate_type_id" validate:"required"`
	CertificateNumber string    `json:"certificate_number" validate:"max=100"`
	IssueDate         string    `json:"issue_date"`
	ExpiryDate        string    `json:"expiry_date"`
}

// checkDates parses the optional date fields and enforces ordering. An expiry
// on or before the issue date is rejected, as is an issue date in the future.
func (p *certificateRequest) checkDates() (issue, expiry *time.Time, err error) {
	issue, err = parseDateField("issue_date", p.IssueDate)
	if err != nil {
		return nil, nil, err
	}
	expiry, err = parseDateField("expiry_date", p.ExpiryDate)
	if err != nil {
		return nil, nil, err
	}
	if issue != nil && issue.After(utils.Today()) {
		return nil, nil, CodedError(&ValidationError{
			Fields: map[string]string{"issue_date": "cannot be in the future"},
		}, http.StatusUnprocessableEntity)
	}
	if issue != nil && expiry != nil && !expiry.After(*issue) {
		return nil, nil, CodedError(&ValidationError{
			Fields: map[string]string{"expiry_date": "must be after the issue date"},
		}, http.StatusUnprocessableEntity)
	}
	return issue, expiry, nil
}

type createCertificateResponse struct {
	CertificateId uuid.UUID `json:"certificate_id"`
}

func (s *CertificateService) CreateCertificate(w http.ResponseWriter, r *http.Request) {
	var params certificateRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	newCert := schema.Certificate{
		Id:     uuid.New(),
		Status: schema.CertPending,
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRequestValid(&params); err != nil {
			return err
		}
		issue, expiry, err := params.checkDates()
		if err != nil {
			return err
		}
		if err := checkCrewMemberExists(txn, params.CrewMemberId); err != nil {
			return err
		}
		if err := checkCertificateTypeExists(txn, params.CertificateTypeId); err != nil {
			return err
		}

		newCert.CrewMemberId = params.CrewMemberId
		newCert.CertificateTypeId = params.CertificateTypeId
		newCert.CertificateNumber = params.CertificateNumber
		newCert.IssueDate = issue
		newCert.ExpiryDate = expiry

		result := txn.Create(&newCert)
		if result.Error != nil {
			slog.Error("sql error creating new certificate", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating certificate: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, createCertificateResponse{CertificateId: newCert.Id})
}

type CertificateInfo struct {
	Id                uuid.UUID                `json:"id"`
	CrewMemberId      uuid.UUID                `json:"crew_member_id"`
	CertificateTypeId uuid.UUID                `json:"certificate_type_id"`
	CertificateNumber string                   `json:"certificate_number"`
	Status            schema.CertificateStatus `json:"status"`
	IssueDate         *time.Time               `json:"issue_date"`
	ExpiryDate        *time.Time               `json:"expiry_date"`
	DaysUntilExpiry   *int                     `json:"days_until_expiry"`
	VerifiedAt        *time.Time               `json:"verified_at"`
	RejectionReason   string                   `json:"rejection_reason,omitempty"`
	HasDocument       bool                     `json:"has_document"`
	TypeCode          string                   `json:"type_code,omitempty"`
	TypeName          string                   `json:"type_name,omitempty"`
}

func certificateInfo(cert schema.Certificate, today time.Time) CertificateInfo {
	info := CertificateInfo{
		Id:                cert.Id,
		CrewMemberId:      cert.CrewMemberId,
		CertificateTypeId: cert.CertificateTypeId,
		CertificateNumber: cert.CertificateNumber,
		Status:            cert.Status,
		IssueDate:         cert.IssueDate,
		ExpiryDate:        cert.ExpiryDate,
		DaysUntilExpiry:   cert.DaysUntilExpiry(today),
		VerifiedAt:        cert.VerifiedAt,
		RejectionReason:   cert.RejectionReason,
		HasDocument:       cert.HasDocument(),
	}
	if cert.CertificateType != nil {
		info.TypeCode = cert.CertificateType.Code
		info.TypeName = cert.CertificateType.Name
	}
	return info
}

// List supports composable filters: crew member, certificate status, and the
// derived expired / expiring_soon / valid_now classifications.
func (s *CertificateService) List(w http.ResponseWriter, r *http.Request) {
	today := utils.Today()

	query := s.db.Preload("CertificateType").Order("created_at DESC")

	if crew := r.URL.Query().Get("crew_member_id"); crew != "" {
		crewMemberId, err := uuid.Parse(crew)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid crew_member_id filter: %v", err), http.StatusBadRequest)
			return
		}
		query = query.Where("crew_member_id = ?", crewMemberId)
	}

	if status := r.URL.Query().Get("status"); status != "" {
		if err := schema.CheckValidCertificateStatus(schema.CertificateStatus(status)); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		query = query.Where("status = ?", status)
	}

	switch filter := r.URL.Query().Get("filter"); filter {
	case "":
	case "expired":
		query = schema.ExpiredCerts(query, today)
	case "expiring_soon":
		query = schema.ExpiringSoonCerts(query, today)
	case "valid_now":
		query = schema.ValidNowCerts(query, today)
	case "pending_review":
		query = schema.PendingReviewCerts(query)
	default:
		http.Error(w, fmt.Sprintf("unknown filter '%v'", filter), http.StatusUnprocessableEntity)
		return
	}

	var certs []schema.Certificate
	result := query.Find(&certs)
	if result.Error != nil {
		slog.Error("sql error listing certificates", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing certificates: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]CertificateInfo, 0, len(certs))
	for _, cert := range certs {
		infos = append(infos, certificateInfo(cert, today))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *CertificateService) GetCertificate(w http.ResponseWriter, r *http.Request) {
	certId, err := utils.URLParamUUID(r, "certificate_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cert, err := schema.GetCertificate(certId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCertificateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting certificate: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, certificateInfo(cert, utils.Today()))
}

func (s *CertificateService) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	certId, err := utils.URLParamUUID(r, "certificate_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var documentPath string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		cert, err := schema.GetCertificate(certId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCertificateNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		documentPath = cert.DocumentPath

		result := txn.Delete(&schema.Certificate{Id: certId})
		if result.Error != nil {
			slog.Error("sql error deleting certificate", "certificate_id", certId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting certificate: %v", err), GetResponseCode(err))
		return
	}

	if documentPath != "" {
		if err := s.store.Delete(documentPath); err != nil {
			slog.Error("error deleting certificate document", "certificate_id", certId, "error", err)
		}
	}

	utils.WriteSuccess(w)
}

// saveDocument sniffs the real content type from the payload, ignoring the
// client supplied header, and enforces the size limit before anything touches
// storage.
func saveDocument(r *http.Request, store storage.Storage, certId uuid.UUID) (path, contentType string, size int64, err error) {
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		return "", "", 0, CodedError(fmt.Errorf("error parsing multipart request: %w", err), http.StatusBadRequest)
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		return "", "", 0, CodedError(fmt.Errorf("request is missing the 'document' file field: %w", err), http.StatusBadRequest)
	}
	defer file.Close()

	if header.Size > maxDocumentSize {
		return "", "", 0, CodedError(fmt.Errorf("document exceeds the %v byte limit", maxDocumentSize), http.StatusRequestEntityTooLarge)
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", 0, CodedError(fmt.Errorf("error reading document: %w", err), http.StatusInternalServerError)
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	if !allowedDocumentTypes[mtype.String()] {
		return "", "", 0, CodedError(fmt.Errorf("document type %v is not accepted, must be PDF, JPEG, PNG, or WebP", mtype.String()), http.StatusUnsupportedMediaType)
	}

	path = storage.DocumentPath(certId, header.Filename)
	if err := store.Write(path, io.MultiReader(bytes.NewReader(head), file)); err != nil {
		slog.Error("error saving certificate document", "certificate_id", certId, "error", err)
		return "", "", 0, CodedError(errors.New("error saving document"), http.StatusInternalServerError)
	}

	return path, mtype.String(), header.Size, nil
}

func (s *CertificateService) UploadDocument(w http.ResponseWriter, r *http.Request) {
	certId, err := utils.URLParamUUID(r, "certificate_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cert, err := schema.GetCertificate(certId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCertificateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting certificate: %v", err), http.StatusInternalServerError)
		return
	}

	if cert.Status == schema.CertVerified || cert.Status == schema.CertRejected {
		http.Error(w, "documents can only be attached to certificates awaiting review", http.StatusConflict)
		return
	}

	path, contentType, size, err := saveDocument(r, s.store, certId)
	if err != nil {
		http.Error(w, fmt.Sprintf("error uploading document: %v", err), GetResponseCode(err))
		return
	}

	result := s.db.Model(&schema.Certificate{Id: certId}).Updates(map[string]interface{}{
		"document_path":         path,
		"document_content_type": contentType,
		"document_size":         size,
	})
	if result.Error != nil {
		slog.Error("sql error recording certificate document", "certificate_id", certId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error uploading document: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	documentUploads.Inc()
	slog.Info("attached certificate document", "certificate_id", certId, "content_type", contentType, "size", size)

	utils.WriteSuccess(w)
}

func (s *CertificateService) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	certId, err := utils.URLParamUUID(r, "certificate_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cert, err := schema.GetCertificate(certId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCertificateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting certificate: %v", err), http.StatusInternalServerError)
		return
	}

	if !cert.HasDocument() {
		http.Error(w, "certificate has no document attached", http.StatusNotFound)
		return
	}

	// The row can outlive the file if the share was pruned out of band, in
	// which case a missing document is a 404 rather than a server fault.
	exists, err := s.store.Exists(cert.DocumentPath)
	if err != nil {
		slog.Error("error checking certificate document", "certificate_id", certId, "error", err)
		http.Error(w, "error reading document", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "certificate document is missing from storage", http.StatusNotFound)
		return
	}

	document, err := s.store.Read(cert.DocumentPath)
	if err != nil {
		slog.Error("error reading certificate document", "certificate_id", certId, "error", err)
		http.Error(w, "error reading document", http.StatusInternalServerError)
		return
	}
	defer document.Close()

	w.Header().Set("Content-Type", cert.DocumentContentType)
	if _, err := io.Copy(w, document); err != nil {
		slog.Error("error streaming certificate document", "certificate_id", certId, "error", err)
	}
}

// Verify moves a certificate to the verified state, recording the reviewer.
// Only pending or processing certificates can be verified, the transition is
// one way.
func (s *CertificateService) Verify(w http.ResponseWriter, r *http.Request) {
	certId, err := utils.URLParamUUID(r, "certificate_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		cert, err := schema.GetCertificate(certId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCertificateNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if !cert.CanVerify() {
			return CodedError(fmt.Errorf("certificate with status %v cannot be verified", cert.Status), http.StatusConflict)
		}

		now := time.Now().UTC()
		result := txn.Model(&schema.Certificate{Id: certId}).Updates(map[string]interface{}{
			"status":           schema.CertVerified,
			"verified_at":      now,
			"verified_by_id":   user.Id,
			"rejection_reason": "",
		})
		if result.Error != nil {
			slog.Error("sql error verifying certificate", "certificate_id", certId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error verifying certificate: %v", err), GetResponseCode(err))
		return
	}

	certificateVerifications.Inc()
	slog.Info("verified certificate", "certificate_id", certId, "verified_by", user.Id)

	utils.WriteSuccess(w)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (s *CertificateService) Reject(w http.ResponseWriter, r *http.Request) {
	certId, err := utils.URLParamUUID(r, "certificate_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params rejectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRequestValid(&params); err != nil {
			return err
		}

		cert, err := schema.GetCertificate(certId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrCertificateNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if !cert.CanReject() {
			return CodedError(fmt.Errorf("certificate with status %v cannot be rejected", cert.Status), http.StatusConflict)
		}

		now := time.Now().UTC()
		result := txn.Model(&schema.Certificate{Id: certId}).Updates(map[string]interface{}{
			"status":           schema.CertRejected,
			"verified_at":      now,
			"verified_by_id":   user.Id,
			"rejection_reason": params.Reason,
		})
		if result.Error != nil {
			slog.Error("sql error rejecting certificate", "certificate_id", certId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error rejecting certificate: %v", err), GetResponseCode(err))
		return
	}

	certificateRejections.Inc()
	slog.Info("rejected certificate", "certificate_id", certId, "rejected_by", user.Id)

	utils.WriteSuccess(w)
}

// Extract kicks off the OCR pass in the background. The response only
// confirms the trigger was accepted, review happens when the certificate
// returns to pending.
func (s *CertificateService) Extract(w http.ResponseWriter, r *http.Request) {
	certId, err := utils.URLParamUUID(r, "certificate_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cert, err := schema.GetCertificate(certId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrCertificateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("error getting certificate: %v", err), http.StatusInternalServerError)
		return
	}

	if !cert.HasDocument() {
		http.Error(w, "certificate has no document to extract from", http.StatusConflict)
		return
	}
	if !jobs.ShouldExtract(&cert) {
		http.Error(w, "certificate is not eligible for extraction", http.StatusConflict)
		return
	}

	go func() {
		if err := s.extraction.Run(context.Background(), certId); err != nil {
			slog.Error("background extraction failed", "certificate_id", certId, "error", err)
		}
	}()

	utils.WriteSuccess(w)
}
