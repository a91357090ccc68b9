package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Vessel struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"size:255;not null"`
	// 7 digit IMO number, optional but unique when present.
	Imo               *string `gorm:"size:7;unique"`
	ManagementCompany string  `gorm:"size:255"`

	CreatedAt time.Time

	CrewMembers        []CrewMember        `gorm:"constraint:OnDelete:CASCADE"`
	MatrixRequirements []MatrixRequirement `gorm:"constraint:OnDelete:CASCADE"`
}

type Role struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"unique;size:100;not null"`
	// Display ordering, assigned as max(position)+1 inside the insert statement.
	Position int `gorm:"not null;index"`

	CrewMembers        []CrewMember
	MatrixRequirements []MatrixRequirement
}

type CertificateType struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Code        string `gorm:"unique;size:50;not null"`
	Name        string `gorm:"size:255;not null"`
	Description string

	// Nil means the certificate never expires.
	ValidityPeriodMonths *int

	Certificates       []Certificate
	MatrixRequirements []MatrixRequirement
}

func (ct *CertificateType) DisplayName() string {
	return fmt.Sprintf("%v - %v", ct.Code, ct.Name)
}

// Category groups certificate types for matrix display based on the code
// prefix convention used by fleet managers.
func (ct *CertificateType) Category() string {
	code := strings.ToUpper(ct.Code)
	switch {
	case strings.HasPrefix(code, "STCW"):
		return "STCW Certificates"
	case strings.HasPrefix(code, "COC"):
		return "Certificates of Competency"
	case strings.HasPrefix(code, "FLAG"):
		return "Flag State Certificates"
	case strings.HasPrefix(code, "MED"):
		return "Medical Certificates"
	default:
		return "Other Certificates"
	}
}

type MatrixRequirement struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	VesselId          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_matrix_cell"`
	RoleId            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_matrix_cell"`
	CertificateTypeId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_matrix_cell"`

	Level RequirementLevel `gorm:"size:1;not null"`

	Vessel          *Vessel
	Role            *Role
	CertificateType *CertificateType
}

func (m *MatrixRequirement) Mandatory() bool {
	return m.Level == Mandatory
}

type CrewMember struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	VesselId uuid.UUID `gorm:"type:uuid;not null;index:idx_crew_vessel_role"`
	RoleId   uuid.UUID `gorm:"type:uuid;not null;index:idx_crew_vessel_role"`

	FirstName string `gorm:"size:100;not null"`
	LastName  string `gorm:"size:100;not null"`
	// Stored lowercased so uniqueness is case insensitive.
	Email string `gorm:"unique;size:254;not null"`
	Phone string `gorm:"size:50"`

	CreatedAt time.Time

	Vessel *Vessel
	Role   *Role

	Certificates        []Certificate        `gorm:"constraint:OnDelete:CASCADE"`
	CertificateRequests []CertificateRequest `gorm:"constraint:OnDelete:CASCADE"`
}

func (cm *CrewMember) FullName() string {
	return strings.TrimSpace(cm.FirstName + " " + cm.LastName)
}

type Certificate struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CrewMemberId      uuid.UUID `gorm:"type:uuid;not null;index:idx_cert_member_type"`
	CertificateTypeId uuid.UUID `gorm:"type:uuid;not null;index:idx_cert_member_type"`

	CertificateNumber string `gorm:"size:100"`

	Status CertificateStatus `gorm:"size:20;not null;default:'pending';index:idx_cert_status_expiry"`

	IssueDate  *time.Time `gorm:"type:date"`
	ExpiryDate *time.Time `gorm:"type:date;index:idx_cert_status_expiry"`

	VerifiedAt      *time.Time
	VerifiedById    *uuid.UUID `gorm:"type:uuid"`
	VerifiedBy      *User      `gorm:"foreignKey:VerifiedById"`
	RejectionReason string

	// Opaque reference to the stored document plus the two properties the
	// core needs for validation.
	DocumentPath        string `gorm:"size:500"`
	DocumentContentType string `gorm:"size:100"`
	DocumentSize        int64

	// OCR derived hints, never trusted blindly.
	ExtractedData datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time

	CrewMember      *CrewMember
	CertificateType *CertificateType
}

func (c *Certificate) HasDocument() bool {
	return c.DocumentPath != ""
}

type CertificateRequest struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	CrewMemberId uuid.UUID `gorm:"type:uuid;not null;index"`

	// Sole capability credential for the public upload flow.
	Token string `gorm:"unique;size:64;not null"`

	Status RequestStatus `gorm:"size:20;not null;default:'pending'"`

	SentAt      *time.Time
	SubmittedAt *time.Time
	ExpiresAt   time.Time `gorm:"not null;index"`

	CreatedAt time.Time

	CrewMember *CrewMember
}

// IsExpired is computed on read, the stored status is never flipped by a
// background process.
func (r *CertificateRequest) IsExpired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

func (r *CertificateRequest) Active(now time.Time) bool {
	return !r.IsExpired(now) && (r.Status == RequestPending || r.Status == RequestSent)
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	IsAdmin bool `gorm:"not null;default:false"`
}
