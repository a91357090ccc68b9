package schema

import (
	"time"

	"gorm.io/gorm"
)

// Composable query scopes mirroring the certificate predicates in status.go.
// Bulk filtering and single certificate classification share the same
// definitions and the same ExpiryWindow constant.

func VerifiedCerts(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", CertVerified)
}

func PendingReviewCerts(db *gorm.DB) *gorm.DB {
	return db.Where("status IN ?", []CertificateStatus{CertPending, CertProcessing})
}

func ExpiredCerts(db *gorm.DB, today time.Time) *gorm.DB {
	return VerifiedCerts(db).Where("expiry_date < ?", today)
}

func ExpiringSoonCerts(db *gorm.DB, today time.Time) *gorm.DB {
	return VerifiedCerts(db).Where("expiry_date BETWEEN ? AND ?", today, today.Add(ExpiryWindow))
}

func ValidNowCerts(db *gorm.DB, today time.Time) *gorm.DB {
	return VerifiedCerts(db).Where("(expiry_date IS NULL OR expiry_date >= ?)", today)
}

func MandatoryRequirements(db *gorm.DB) *gorm.DB {
	return db.Where("level = ?", Mandatory)
}
