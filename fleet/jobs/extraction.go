package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crewcert/fleet/ocr"
	"crewcert/fleet/schema"
	"crewcert/fleet/storage"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Processing rows older than this are assumed orphaned, a healthy run
// finishes in seconds.
const staleProcessingAge = 15 * time.Minute

// ExtractionRunner drives the OCR pass over an uploaded document. The
// certificate is moved pending -> processing for the duration of the pass and
// is always returned to pending on any terminal outcome, so a failed
// extraction can never park a certificate in processing.
type ExtractionRunner struct {
	db        *gorm.DB
	store     storage.Storage
	extractor ocr.Extractor
}

func NewExtractionRunner(db *gorm.DB, store storage.Storage, extractor ocr.Extractor) *ExtractionRunner {
	return &ExtractionRunner{db: db, store: store, extractor: extractor}
}

// Schedule registers the stale processing sweep on the given cron runner,
// every ten minutes.
func (r *ExtractionRunner) Schedule(c *cron.Cron) error {
	_, err := c.AddFunc("*/10 * * * *", r.ReclaimStale)
	if err != nil {
		return fmt.Errorf("error scheduling extraction reclaim sweep: %w", err)
	}
	return nil
}

// ReclaimStale returns long stuck processing certificates to pending. The
// soft lock taken in Run is only released by finish, so a crashed process or
// a failed status restore would otherwise hide the certificate from review
// forever.
func (r *ExtractionRunner) ReclaimStale() {
	cutoff := time.Now().UTC().Add(-staleProcessingAge)
	result := r.db.Model(&schema.Certificate{}).
		Where("status = ? AND updated_at < ?", schema.CertProcessing, cutoff).
		Update("status", schema.CertPending)
	if result.Error != nil {
		slog.Error("sql error reclaiming stale processing certificates", "error", result.Error)
		return
	}
	if result.RowsAffected != 0 {
		slog.Warn("reclaimed certificates stuck in processing", "count", result.RowsAffected)
	}
}

// ShouldExtract guards against retrigger loops: extraction runs only for
// pending certificates with a document attached and no prior extraction
// attempt recorded.
func ShouldExtract(cert *schema.Certificate) bool {
	if !cert.HasDocument() || cert.Status != schema.CertPending {
		return false
	}
	return extractionMethod(cert.ExtractedData) == ""
}

func extractionMethod(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	method, _ := fields["extraction_method"].(string)
	return method
}

// Run executes one extraction attempt. Unexpected faults are returned to the
// caller so a surrounding retry policy can reschedule, but the certificate is
// left in pending with the extraction method sentinel written either way.
func (r *ExtractionRunner) Run(ctx context.Context, certificateId uuid.UUID) error {
	cert, err := schema.GetCertificate(certificateId, r.db)
	if err != nil {
		if errors.Is(err, schema.ErrCertificateNotFound) {
			slog.Info("extraction skipped, certificate deleted", "certificate_id", certificateId)
			return nil
		}
		return err
	}

	if !ShouldExtract(&cert) {
		return nil
	}

	// The processing status acts as a soft lock against concurrent runs.
	result := r.db.Model(&schema.Certificate{Id: cert.Id}).
		Where("status = ?", schema.CertPending).
		Update("status", schema.CertProcessing)
	if result.Error != nil {
		slog.Error("sql error marking certificate as processing", "certificate_id", cert.Id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		slog.Info("extraction skipped, certificate no longer pending", "certificate_id", cert.Id)
		return nil
	}

	extraction, extractErr := r.extract(ctx, &cert)

	if writeErr := r.finish(&cert, extraction); writeErr != nil {
		return writeErr
	}

	if extractErr != nil {
		slog.Error("certificate extraction failed", "certificate_id", cert.Id, "error", extractErr)
		return fmt.Errorf("certificate extraction failed for %v: %w", cert.Id, extractErr)
	}

	slog.Info("certificate extraction completed", "certificate_id", cert.Id,
		"success", extraction.Success, "confidence", extraction.Confidence)
	return nil
}

func (r *ExtractionRunner) extract(ctx context.Context, cert *schema.Certificate) (ocr.Result, error) {
	document, err := r.store.Read(cert.DocumentPath)
	if err != nil {
		return ocr.Result{Error: err.Error(), ExtractionMethod: "failed"}, err
	}
	defer document.Close()

	extraction, err := r.extractor.Extract(ctx, document, cert.DocumentContentType)
	if err != nil {
		return ocr.Result{Error: err.Error(), ExtractionMethod: "failed"}, err
	}
	return extraction, nil
}

// finish writes the outcome in one transaction: proposed values only fill
// empty fields, extracted_data always records the extraction method sentinel
// (and the error message, for operator visibility), and status returns to
// pending for human review. Last write wins if runs overlapped.
func (r *ExtractionRunner) finish(cert *schema.Certificate, extraction ocr.Result) error {
	updates := map[string]interface{}{"status": schema.CertPending}

	if extraction.Success {
		if cert.CertificateNumber == "" && extraction.CertificateNumber != "" {
			updates["certificate_number"] = extraction.CertificateNumber
		}
		if cert.IssueDate == nil && extraction.IssueDate != nil {
			updates["issue_date"] = extraction.IssueDate
		}
		if cert.ExpiryDate == nil && extraction.ExpiryDate != nil {
			updates["expiry_date"] = extraction.ExpiryDate
		}
	}

	extractedData, err := json.Marshal(map[string]interface{}{
		"success":            extraction.Success,
		"certificate_number": extraction.CertificateNumber,
		"issuing_authority":  extraction.IssuingAuthority,
		"holder_name":        extraction.HolderName,
		"confidence":         extraction.Confidence,
		"raw_text":           extraction.RawText,
		"error":              extraction.Error,
		"extraction_method":  extraction.ExtractionMethod,
		"extracted_at":       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("error encoding extraction result: %w", err)
	}
	updates["extracted_data"] = extractedData

	result := r.db.Model(&schema.Certificate{Id: cert.Id}).Updates(updates)
	if result.Error != nil {
		slog.Error("sql error writing extraction result", "certificate_id", cert.Id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	return nil
}
