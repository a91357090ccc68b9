package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"crewcert/fleet/schema"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// ValidationError collects per field messages for a 422 response.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%v: %v", field, msg))
	}
	return strings.Join(parts, ", ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// checkRequestValid runs the validate struct tags on params and converts any
// failures into a coded ValidationError.
func checkRequestValid(params interface{}) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return CodedError(err, http.StatusInternalServerError)
	}

	fields := map[string]string{}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			fields[strings.ToLower(fe.Field())] = fmt.Sprintf("failed '%v' validation", fe.Tag())
		}
	}
	return CodedError(&ValidationError{Fields: fields}, http.StatusUnprocessableEntity)
}

const dateFormat = "2006-01-02"

func parseDateField(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	date, err := time.Parse(dateFormat, value)
	if err != nil {
		return nil, CodedError(&ValidationError{
			Fields: map[string]string{name: fmt.Sprintf("must be a date in the form %v", dateFormat)},
		}, http.StatusUnprocessableEntity)
	}
	return &date, nil
}

func checkVesselExists(txn *gorm.DB, vesselId uuid.UUID) error {
	if _, err := schema.GetVessel(vesselId, txn); err != nil {
		if errors.Is(err, schema.ErrVesselNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkRoleExists(txn *gorm.DB, roleId uuid.UUID) error {
	if _, err := schema.GetRole(roleId, txn); err != nil {
		if errors.Is(err, schema.ErrRoleNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkCertificateTypeExists(txn *gorm.DB, typeId uuid.UUID) error {
	if _, err := schema.GetCertificateType(typeId, txn); err != nil {
		if errors.Is(err, schema.ErrCertificateTypeNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkCrewMemberExists(txn *gorm.DB, crewMemberId uuid.UUID) error {
	if _, err := schema.GetCrewMember(crewMemberId, txn, false); err != nil {
		if errors.Is(err, schema.ErrCrewMemberNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

// loadVesselCompliance fetches the crew and requirements needed by both the
// readiness and report endpoints. Certificates and roles come preloaded.
func loadVesselCompliance(db *gorm.DB, vesselId uuid.UUID) ([]schema.CrewMember, []schema.MatrixRequirement, error) {
	var crewMembers []schema.CrewMember
	result := db.Preload("Role").Preload("Certificates").Where("vessel_id = ?", vesselId).Find(&crewMembers)
	if result.Error != nil {
		slog.Error("sql error listing vessel crew", "vessel_id", vesselId, "error", result.Error)
		return nil, nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	var requirements []schema.MatrixRequirement
	result = db.Where("vessel_id = ?", vesselId).Find(&requirements)
	if result.Error != nil {
		slog.Error("sql error listing vessel requirements", "vessel_id", vesselId, "error", result.Error)
		return nil, nil, CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return crewMembers, requirements, nil
}
