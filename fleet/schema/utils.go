package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrVesselNotFound          = errors.New("vessel not found")
	ErrRoleNotFound            = errors.New("role not found")
	ErrCertificateTypeNotFound = errors.New("certificate type not found")
	ErrCrewMemberNotFound      = errors.New("crew member not found")
	ErrCertificateNotFound     = errors.New("certificate not found")
	ErrRequestNotFound         = errors.New("certificate request not found")
	ErrUserNotFound            = errors.New("user not found")
	ErrDbAccessFailed          = errors.New("db access failed")
)

func GetVessel(vesselId uuid.UUID, db *gorm.DB) (Vessel, error) {
	var vessel Vessel

	result := db.First(&vessel, "id = ?", vesselId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return vessel, ErrVesselNotFound
		}
		slog.Error("sql error in get vessel", "vessel_id", vesselId, "error", result.Error)
		return vessel, ErrDbAccessFailed
	}

	return vessel, nil
}

func GetRole(roleId uuid.UUID, db *gorm.DB) (Role, error) {
	var role Role

	result := db.First(&role, "id = ?", roleId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return role, ErrRoleNotFound
		}
		slog.Error("sql error in get role", "role_id", roleId, "error", result.Error)
		return role, ErrDbAccessFailed
	}

	return role, nil
}

func GetCertificateType(typeId uuid.UUID, db *gorm.DB) (CertificateType, error) {
	var certType CertificateType

	result := db.First(&certType, "id = ?", typeId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return certType, ErrCertificateTypeNotFound
		}
		slog.Error("sql error in get certificate type", "certificate_type_id", typeId, "error", result.Error)
		return certType, ErrDbAccessFailed
	}

	return certType, nil
}

func GetCrewMember(crewMemberId uuid.UUID, db *gorm.DB, loadCerts bool) (CrewMember, error) {
	var crewMember CrewMember

	query := db.Preload("Role").Preload("Vessel")
	if loadCerts {
		query = query.Preload("Certificates").Preload("Certificates.CertificateType")
	}

	result := query.First(&crewMember, "id = ?", crewMemberId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return crewMember, ErrCrewMemberNotFound
		}
		slog.Error("sql error in get crew member", "crew_member_id", crewMemberId, "error", result.Error)
		return crewMember, ErrDbAccessFailed
	}

	return crewMember, nil
}

func GetCertificate(certId uuid.UUID, db *gorm.DB) (Certificate, error) {
	var cert Certificate

	result := db.Preload("CertificateType").Preload("CrewMember").First(&cert, "id = ?", certId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return cert, ErrCertificateNotFound
		}
		slog.Error("sql error in get certificate", "certificate_id", certId, "error", result.Error)
		return cert, ErrDbAccessFailed
	}

	return cert, nil
}

func GetRequestByToken(token string, db *gorm.DB) (CertificateRequest, error) {
	var request CertificateRequest

	result := db.Preload("CrewMember").Preload("CrewMember.Vessel").Preload("CrewMember.Role").
		First(&request, "token = ?", token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return request, ErrRequestNotFound
		}
		slog.Error("sql error in get certificate request by token", "error", result.Error)
		return request, ErrDbAccessFailed
	}

	return request, nil
}

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}
