package tests

import (
	"fmt"
	"net/http"
	"testing"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
)

// pdfBytes is enough of a document for content type sniffing to accept it.
var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>")

type certFixture struct {
	admin  client
	crewId string
	typeId string
}

func setupCertFixture(t *testing.T, env testEnv) certFixture {
	admin := env.adminClient(t)

	vesselId, err := admin.createVessel("MV Aurora", "")
	if err != nil {
		t.Fatal(err)
	}
	roleId, _, err := admin.createRole("Master")
	if err != nil {
		t.Fatal(err)
	}
	crewId, err := admin.createCrewMember(vesselId, roleId, "Elena", "Marsh", "elena@mail.com")
	if err != nil {
		t.Fatal(err)
	}
	typeId, err := admin.createCertificateType("STCW-BST", "Basic Safety Training", nil)
	if err != nil {
		t.Fatal(err)
	}

	return certFixture{admin: admin, crewId: crewId, typeId: typeId}
}

func TestCertificateLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	f := setupCertFixture(t, env)

	certId, err := f.admin.createCertificate(f.crewId, f.typeId, "BST-001", daysFromNow(-30), daysFromNow(300))
	if err != nil {
		t.Fatal(err)
	}

	cert, err := f.admin.getCertificate(certId)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Status != schema.CertPending {
		t.Fatalf("new certificate should be pending, got %v", cert.Status)
	}
	if cert.DaysUntilExpiry == nil || *cert.DaysUntilExpiry < 298 || *cert.DaysUntilExpiry > 300 {
		t.Fatalf("unexpected days until expiry %v", cert.DaysUntilExpiry)
	}

	if err := f.admin.verifyCertificate(certId); err != nil {
		t.Fatal(err)
	}

	cert, err = f.admin.getCertificate(certId)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Status != schema.CertVerified || cert.VerifiedAt == nil {
		t.Fatalf("expected verified certificate with timestamp, got %v", cert)
	}

	// Review decisions are final. A verified certificate cannot be verified
	// again or rejected.
	err = f.admin.verifyCertificate(certId)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("double verify should conflict, got %v", err)
	}
	err = f.admin.rejectCertificate(certId, "illegible scan")
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("rejecting a verified certificate should conflict, got %v", err)
	}
}

func TestCertificateRejection(t *testing.T) {
	env := setupTestEnv(t)
	f := setupCertFixture(t, env)

	certId, err := f.admin.createCertificate(f.crewId, f.typeId, "BST-001", "", "")
	if err != nil {
		t.Fatal(err)
	}

	err = f.admin.rejectCertificate(certId, "")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("rejection without a reason should be rejected, got %v", err)
	}

	if err := f.admin.rejectCertificate(certId, "certificate number does not match the scan"); err != nil {
		t.Fatal(err)
	}

	cert, err := f.admin.getCertificate(certId)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Status != schema.CertRejected {
		t.Fatalf("expected rejected status, got %v", cert.Status)
	}
	if cert.RejectionReason != "certificate number does not match the scan" {
		t.Fatalf("unexpected rejection reason %v", cert.RejectionReason)
	}
}

func TestCertificateDateValidation(t *testing.T) {
	env := setupTestEnv(t)
	f := setupCertFixture(t, env)

	_, err := f.admin.createCertificate(f.crewId, f.typeId, "BST-001", daysFromNow(10), daysFromNow(-10))
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expiry before issue should be rejected, got %v", err)
	}

	_, err = f.admin.createCertificate(f.crewId, f.typeId, "BST-001", "not-a-date", "")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("malformed date should be rejected, got %v", err)
	}

	// Dates are optional, a certificate can be logged before the scan arrives.
	if _, err := f.admin.createCertificate(f.crewId, f.typeId, "", "", ""); err != nil {
		t.Fatal(err)
	}
}

func TestCertificateListFilters(t *testing.T) {
	env := setupTestEnv(t)
	f := setupCertFixture(t, env)

	expired, err := f.admin.createCertificate(f.crewId, f.typeId, "OLD-1", daysFromNow(-400), daysFromNow(-10))
	if err != nil {
		t.Fatal(err)
	}
	expiring, err := f.admin.createCertificate(f.crewId, f.typeId, "SOON-1", daysFromNow(-300), daysFromNow(15))
	if err != nil {
		t.Fatal(err)
	}
	valid, err := f.admin.createCertificate(f.crewId, f.typeId, "GOOD-1", daysFromNow(-30), daysFromNow(300))
	if err != nil {
		t.Fatal(err)
	}

	for _, certId := range []string{expired, expiring, valid} {
		if err := f.admin.verifyCertificate(certId); err != nil {
			t.Fatal(err)
		}
	}

	pending, err := f.admin.createCertificate(f.crewId, f.typeId, "NEW-1", "", "")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		filter string
		want   map[string]bool
	}{
		{"expired", map[string]bool{expired: true}},
		{"expiring_soon", map[string]bool{expiring: true}},
		// Expiring soon certificates are still valid today.
		{"valid_now", map[string]bool{valid: true, expiring: true}},
		{"pending_review", map[string]bool{pending: true}},
	}
	for _, tc := range cases {
		certs, err := f.admin.listCertificates("filter=" + tc.filter)
		if err != nil {
			t.Fatal(err)
		}
		if len(certs) != len(tc.want) {
			t.Fatalf("filter %v returned wrong certificates: %v", tc.filter, certs)
		}
		for _, cert := range certs {
			if !tc.want[cert.Id.String()] {
				t.Fatalf("filter %v returned unexpected certificate %v", tc.filter, cert.Id)
			}
		}
	}

	_, err = f.admin.listCertificates("filter=bogus")
	if statusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("unknown filter should be rejected, got %v", err)
	}

	certs, err := f.admin.listCertificates("status=pending")
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 1 || certs[0].Id.String() != pending {
		t.Fatalf("status filter returned wrong certificates: %v", certs)
	}

	certs, err = f.admin.listCertificates(fmt.Sprintf("crew_member_id=%v", f.crewId))
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 4 {
		t.Fatalf("expected 4 certificates for crew member, got %d", len(certs))
	}
}

func TestCertificateDocumentUpload(t *testing.T) {
	env := setupTestEnv(t)
	f := setupCertFixture(t, env)

	certId, err := f.admin.createCertificate(f.crewId, f.typeId, "BST-001", "", "")
	if err != nil {
		t.Fatal(err)
	}

	err = f.admin.uploadDocument(certId, "cert.txt", []byte("just some text"))
	if statusOf(err) != http.StatusUnsupportedMediaType {
		t.Fatalf("plain text upload should be rejected, got %v", err)
	}

	if err := f.admin.uploadDocument(certId, "cert.pdf", pdfBytes); err != nil {
		t.Fatal(err)
	}

	cert, err := f.admin.getCertificate(certId)
	if err != nil {
		t.Fatal(err)
	}
	if !cert.HasDocument {
		t.Fatal("certificate should report an attached document")
	}

	// Documents are frozen once review is complete.
	if err := f.admin.verifyCertificate(certId); err != nil {
		t.Fatal(err)
	}
	err = f.admin.uploadDocument(certId, "cert.pdf", pdfBytes)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("upload after verification should conflict, got %v", err)
	}
}

func TestCertificateDocumentDownload(t *testing.T) {
	env := setupTestEnv(t)
	f := setupCertFixture(t, env)

	certId, err := f.admin.createCertificate(f.crewId, f.typeId, "BST-001", "", "")
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = f.admin.downloadDocument(certId)
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("certificate without a document should 404, got %v", err)
	}

	if err := f.admin.uploadDocument(certId, "cert.pdf", pdfBytes); err != nil {
		t.Fatal(err)
	}

	data, contentType, err := f.admin.downloadDocument(certId)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "application/pdf" {
		t.Fatalf("expected pdf content type, got %v", contentType)
	}
	if string(data) != string(pdfBytes) {
		t.Fatal("downloaded document should match the upload")
	}

	// A row can point at a file the share no longer holds.
	result := env.db.Model(&schema.Certificate{}).Where("id = ?", uuid.MustParse(certId)).
		Update("document_path", "documents/gone/cert.pdf")
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	_, _, err = f.admin.downloadDocument(certId)
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("missing file should 404, got %v", err)
	}
}
