package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"crewcert/fleet/auth"
	"crewcert/fleet/mailer"
	"crewcert/fleet/schema"
	"crewcert/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Upload requests stay valid for a week. Expiry is evaluated on read, the
// stored status is never flipped in the background.
const requestTtl = 7 * 24 * time.Hour

type RequestService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	mailer   mailer.Mailer
	// Public origin for the upload portal, e.g. https://fleet.example.com.
	publicUrl string
}

func (s *RequestService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/create", s.CreateRequest)
	r.Get("/list", s.List)

	return r
}

func (s *RequestService) uploadUrl(token string) string {
	return fmt.Sprintf("%v/upload/%v", s.publicUrl, token)
}

type createRequestParams struct {
	CrewMemberId uuid.UUID `json:"crew_member_id" validate:"required"`
}

type createRequestResponse struct {
	RequestId uuid.UUID `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateRequest issues a tokenized upload link to one crew member and mails
// it. The row and the email either both happen or neither does.
func (s *RequestService) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var params createRequestParams
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var request schema.CertificateRequest

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkRequestValid(&params); err != nil {
			return err
		}

		crewMember, err := schema.GetCrewMember(params.CrewMemberId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrCrewMemberNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		request, err = s.sendOne(txn, crewMember)
		return err
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating certificate request: %v", err), GetResponseCode(err))
		return
	}

	requestsSent.Inc()
	slog.Info("sent certificate request", "request_id", request.Id, "crew_member_id", params.CrewMemberId)

	utils.WriteJsonResponse(w, createRequestResponse{RequestId: request.Id, ExpiresAt: request.ExpiresAt})
}

// sendOne creates the request row and mails the upload link inside the
// caller's transaction. A mail failure rolls the row back.
func (s *RequestService) sendOne(txn *gorm.DB, crewMember schema.CrewMember) (schema.CertificateRequest, error) {
	token, err := utils.NewSecureToken()
	if err != nil {
		slog.Error("error generating request token", "error", err)
		return schema.CertificateRequest{}, CodedError(errors.New("error generating request token"), http.StatusInternalServerError)
	}

	now := time.Now().UTC()
	request := schema.CertificateRequest{
		Id:           uuid.New(),
		CrewMemberId: crewMember.Id,
		Token:        token,
		Status:       schema.RequestSent,
		SentAt:       &now,
		ExpiresAt:    now.Add(requestTtl),
	}

	result := txn.Create(&request)
	if result.Error != nil {
		slog.Error("sql error creating certificate request", "crew_member_id", crewMember.Id, "error", result.Error)
		return schema.CertificateRequest{}, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	vesselName := ""
	if crewMember.Vessel != nil {
		vesselName = crewMember.Vessel.Name
	} else {
		vessel, err := schema.GetVessel(crewMember.VesselId, txn)
		if err == nil {
			vesselName = vessel.Name
		}
	}

	subject, body := mailer.CertificateRequestEmail(crewMember.FullName(), vesselName, s.uploadUrl(token), request.ExpiresAt)
	if err := s.mailer.Send(crewMember.FullName(), crewMember.Email, subject, body); err != nil {
		slog.Error("error sending certificate request email", "crew_member_id", crewMember.Id, "error", err)
		return schema.CertificateRequest{}, CodedError(mailer.ErrSendFailed, http.StatusBadGateway)
	}

	return request, nil
}

type BulkSendSummary struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

// SendBulk issues requests to every given crew member. Each member gets their
// own transaction so one failure cannot take down the whole batch.
func (s *RequestService) SendBulk(crewMembers []schema.CrewMember) BulkSendSummary {
	summary := BulkSendSummary{Errors: []string{}}

	for _, crewMember := range crewMembers {
		err := s.db.Transaction(func(txn *gorm.DB) error {
			_, err := s.sendOne(txn, crewMember)
			return err
		})
		if err != nil {
			slog.Error("error sending certificate request in bulk", "crew_member_id", crewMember.Id, "error", err)
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%v: %v", crewMember.FullName(), err))
			continue
		}
		requestsSent.Inc()
		summary.Sent++
	}

	return summary
}

type RequestInfo struct {
	Id           uuid.UUID            `json:"id"`
	CrewMemberId uuid.UUID            `json:"crew_member_id"`
	Status       schema.RequestStatus `json:"status"`
	SentAt       *time.Time           `json:"sent_at"`
	SubmittedAt  *time.Time           `json:"submitted_at"`
	ExpiresAt    time.Time            `json:"expires_at"`
	Expired      bool                 `json:"expired"`
}

func (s *RequestService) List(w http.ResponseWriter, r *http.Request) {
	query := s.db.Order("created_at DESC")

	if crew := r.URL.Query().Get("crew_member_id"); crew != "" {
		crewMemberId, err := uuid.Parse(crew)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid crew_member_id filter: %v", err), http.StatusBadRequest)
			return
		}
		query = query.Where("crew_member_id = ?", crewMemberId)
	}

	var requests []schema.CertificateRequest
	result := query.Find(&requests)
	if result.Error != nil {
		slog.Error("sql error listing certificate requests", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing certificate requests: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	infos := make([]RequestInfo, 0, len(requests))
	for _, request := range requests {
		infos = append(infos, RequestInfo{
			Id:           request.Id,
			CrewMemberId: request.CrewMemberId,
			Status:       request.Status,
			SentAt:       request.SentAt,
			SubmittedAt:  request.SubmittedAt,
			ExpiresAt:    request.ExpiresAt,
			Expired:      request.IsExpired(now),
		})
	}

	utils.WriteJsonResponse(w, infos)
}
