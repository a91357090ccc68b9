package ocr

import (
	"context"
	"io"
	"time"
)

// Result carries proposed field values extracted from a certificate
// document. They are candidate input only, never written over values a human
// has already entered.
type Result struct {
	Success bool

	CertificateNumber string
	IssueDate         *time.Time
	ExpiryDate        *time.Time
	IssuingAuthority  string
	HolderName        string

	Confidence float64
	RawText    string
	Error      string

	// Always set on any terminal outcome, acts as the retrigger guard on
	// subsequent certificate saves.
	ExtractionMethod string
}

// Extractor reads a certificate document and proposes field values. A
// confidence below MinConfidence is treated as failure, the certificate
// stays in pending for manual review either way.
type Extractor interface {
	Extract(ctx context.Context, document io.Reader, contentType string) (Result, error)
}

const MinConfidence = 0.3

// Disabled is used when no extraction provider is configured. Every attempt
// reports a failed extraction so certificates still get their method sentinel
// and stay in pending.
type Disabled struct{}

func (Disabled) Extract(ctx context.Context, document io.Reader, contentType string) (Result, error) {
	return Result{
		Success:          false,
		Error:            "document extraction is not configured",
		ExtractionMethod: "disabled",
	}, nil
}
