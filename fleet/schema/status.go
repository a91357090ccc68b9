package schema

import (
	"fmt"
	"time"
)

type CertificateStatus string

const (
	CertPending    CertificateStatus = "pending"
	CertProcessing CertificateStatus = "processing"
	CertVerified   CertificateStatus = "verified"
	CertRejected   CertificateStatus = "rejected"
)

func CheckValidCertificateStatus(status CertificateStatus) error {
	switch status {
	case CertPending, CertProcessing, CertVerified, CertRejected:
		return nil
	default:
		return fmt.Errorf("invalid certificate status '%v'", status)
	}
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestSent      RequestStatus = "sent"
	RequestSubmitted RequestStatus = "submitted"
	RequestExpired   RequestStatus = "expired"
)

type RequirementLevel string

const (
	Mandatory RequirementLevel = "M"
	Optional  RequirementLevel = "O"
)

func CheckValidRequirementLevel(level RequirementLevel) error {
	switch level {
	case Mandatory, Optional:
		return nil
	default:
		return fmt.Errorf("invalid requirement level '%v', must be 'M' or 'O'", level)
	}
}

// ExpiryWindow is the lookahead used for the expiring soon classification.
// The same constant backs the single certificate predicates and the bulk
// query scopes so the two can never drift.
const ExpiryWindow = 30 * 24 * time.Hour

// CanVerify reports whether the certificate is still awaiting review.
// Verified and rejected are terminal.
func (c *Certificate) CanVerify() bool {
	return c.Status == CertPending || c.Status == CertProcessing
}

func (c *Certificate) CanReject() bool {
	return c.CanVerify()
}

// Expired holds only for verified certificates whose expiry date has passed.
func (c *Certificate) Expired(today time.Time) bool {
	return c.Status == CertVerified && c.ExpiryDate != nil && c.ExpiryDate.Before(today)
}

// ExpiringSoon holds for verified certificates expiring within ExpiryWindow,
// inclusive of today.
func (c *Certificate) ExpiringSoon(today time.Time) bool {
	if c.Status != CertVerified || c.ExpiryDate == nil {
		return false
	}
	return !c.ExpiryDate.Before(today) && !c.ExpiryDate.After(today.Add(ExpiryWindow))
}

func (c *Certificate) ValidNow(today time.Time) bool {
	return c.Status == CertVerified && !c.Expired(today)
}

func (c *Certificate) DaysUntilExpiry(today time.Time) *int {
	if c.ExpiryDate == nil {
		return nil
	}
	days := int(c.ExpiryDate.Sub(today).Hours() / 24)
	return &days
}
