package tests

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
)

type requestFixture struct {
	admin    client
	vesselId string
	roleId   string
	crewId   string
	typeId   string
}

func setupRequestFixture(t *testing.T, env testEnv) requestFixture {
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
	if err := admin.setMatrixCell(vesselId, roleId, typeId, "M"); err != nil {
		t.Fatal(err)
	}

	return requestFixture{admin: admin, vesselId: vesselId, roleId: roleId, crewId: crewId, typeId: typeId}
}

// requestToken reads the upload token straight from the stored row, the same
// token that went out in the email link.
func requestToken(t *testing.T, env testEnv, crewId string) string {
	var request schema.CertificateRequest
	result := env.db.Where("crew_member_id = ?", uuid.MustParse(crewId)).Order("created_at DESC").First(&request)
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	return request.Token
}

func TestCertificateRequestEmail(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	res, err := f.admin.createRequest(f.crewId)
	if err != nil {
		t.Fatal(err)
	}
	if res["request_id"] == nil {
		t.Fatal("expected a request id")
	}

	mails := env.mailer.sentTo("elena@mail.com")
	if len(mails) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mails))
	}
	token := requestToken(t, env, f.crewId)
	if !strings.Contains(mails[0].Body, testPublicUrl+"/upload/"+token) {
		t.Fatal("email should contain the upload link")
	}

	requests, err := f.admin.listRequests(f.crewId)
	if err != nil {
		t.Fatal(err)
	}
	if len(requests) != 1 || requests[0].Status != schema.RequestSent || requests[0].Expired {
		t.Fatalf("unexpected request list %v", requests)
	}
}

func TestCertificateRequestMailFailureRollsBack(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	env.mailer.failFor["elena@mail.com"] = true

	_, err := f.admin.createRequest(f.crewId)
	if statusOf(err) != http.StatusBadGateway {
		t.Fatalf("mail failure should surface as bad gateway, got %v", err)
	}

	// The request row must not survive the failed send.
	var count int64
	if result := env.db.Model(&schema.CertificateRequest{}).Count(&count); result.Error != nil {
		t.Fatal(result.Error)
	}
	if count != 0 {
		t.Fatalf("expected no request rows after failed send, got %d", count)
	}
}

func TestBulkSendToleratesPartialFailure(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	if _, err := f.admin.createCrewMember(f.vesselId, f.roleId, "Tomas", "Reyes", "tomas@mail.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.admin.createCrewMember(f.vesselId, f.roleId, "Ingrid", "Holt", "ingrid@mail.com"); err != nil {
		t.Fatal(err)
	}

	env.mailer.failFor["tomas@mail.com"] = true

	summary, err := f.admin.sendRequests(f.vesselId)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Sent != 2 || summary.Failed != 1 {
		t.Fatalf("expected 2 sent and 1 failed, got %v", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "Tomas Reyes") {
		t.Fatalf("failure should be reported against the crew member, got %v", summary.Errors)
	}

	var count int64
	if result := env.db.Model(&schema.CertificateRequest{}).Count(&count); result.Error != nil {
		t.Fatal(result.Error)
	}
	if count != 2 {
		t.Fatalf("expected 2 request rows, got %d", count)
	}
	if len(env.mailer.sentTo("tomas@mail.com")) != 0 {
		t.Fatal("failed recipient should not have received mail")
	}
}

func TestUploadPortalFlow(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	if _, err := f.admin.createRequest(f.crewId); err != nil {
		t.Fatal(err)
	}
	token := requestToken(t, env, f.crewId)

	// The portal needs no login, the token is the credential.
	anon := env.newClient()

	portal, err := anon.getPortal(token)
	if err != nil {
		t.Fatal(err)
	}
	if portal.CrewName != "Elena Marsh" || portal.VesselName != "MV Aurora" {
		t.Fatalf("unexpected portal header %v", portal)
	}
	if len(portal.Requirements) != 1 || portal.Requirements[0].Code != "STCW-BST" {
		t.Fatalf("unexpected portal requirements %v", portal.Requirements)
	}
	if portal.Requirements[0].CurrentStatus != nil {
		t.Fatal("requirement without certificates should have no current status")
	}

	_, err = anon.getPortal("no-such-token")
	if statusOf(err) != http.StatusNotFound {
		t.Fatalf("unknown token should 404, got %v", err)
	}

	certId, err := anon.submitPortalCertificate(token, f.typeId, map[string]string{
		"certificate_number": "BST-777",
		"issue_date":         daysFromNow(-10),
		"expiry_date":        daysFromNow(350),
	}, pdfBytes)
	if err != nil {
		t.Fatal(err)
	}

	cert, err := f.admin.getCertificate(certId)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Status != schema.CertPending || !cert.HasDocument {
		t.Fatalf("submitted certificate should be pending with a document, got %v", cert)
	}

	portal, err = anon.getPortal(token)
	if err != nil {
		t.Fatal(err)
	}
	if portal.Requirements[0].CurrentStatus == nil || *portal.Requirements[0].CurrentStatus != "pending" {
		t.Fatalf("portal should now show the pending certificate, got %v", portal.Requirements[0].CurrentStatus)
	}

	if err := anon.completePortal(token); err != nil {
		t.Fatal(err)
	}

	// A completed request is closed to further access.
	_, err = anon.getPortal(token)
	if statusOf(err) != http.StatusConflict {
		t.Fatalf("completed request should conflict, got %v", err)
	}

	requests, err := f.admin.listRequests(f.crewId)
	if err != nil {
		t.Fatal(err)
	}
	if len(requests) != 1 || requests[0].Status != schema.RequestSubmitted || requests[0].SubmittedAt == nil {
		t.Fatalf("unexpected request after completion %v", requests)
	}
}

func TestUploadPortalResubmissionReplacesCertificate(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	if _, err := f.admin.createRequest(f.crewId); err != nil {
		t.Fatal(err)
	}
	token := requestToken(t, env, f.crewId)
	anon := env.newClient()

	firstId, err := anon.submitPortalCertificate(token, f.typeId, map[string]string{
		"certificate_number": "BST-1",
		"issue_date":         daysFromNow(-30),
		"expiry_date":        daysFromNow(330),
	}, pdfBytes)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.admin.rejectCertificate(firstId, "blurry scan"); err != nil {
		t.Fatal(err)
	}

	secondId, err := anon.submitPortalCertificate(token, f.typeId, map[string]string{
		"certificate_number": "BST-2",
		"issue_date":         daysFromNow(-5),
		"expiry_date":        daysFromNow(360),
	}, pdfBytes)
	if err != nil {
		t.Fatal(err)
	}
	if secondId != firstId {
		t.Fatalf("resubmission should reuse the existing certificate, got %v and %v", firstId, secondId)
	}

	// One certificate per crew member and type, the rejected attempt must
	// not linger next to the replacement.
	var count int64
	result := env.db.Model(&schema.Certificate{}).
		Where("crew_member_id = ? AND certificate_type_id = ?", uuid.MustParse(f.crewId), uuid.MustParse(f.typeId)).
		Count(&count)
	if result.Error != nil {
		t.Fatal(result.Error)
	}
	if count != 1 {
		t.Fatalf("expected exactly one certificate for the pair, got %d", count)
	}

	cert, err := f.admin.getCertificate(firstId)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Status != schema.CertPending || cert.CertificateNumber != "BST-2" {
		t.Fatalf("resubmission should reset the certificate for review, got %v", cert)
	}
	if cert.RejectionReason != "" {
		t.Fatal("resubmission should clear the previous rejection reason")
	}
}

func TestUploadPortalRejectsTypesOutsideMatrix(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	otherTypeId, err := f.admin.createCertificateType("COC-OOW", "Officer of the Watch", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.admin.createRequest(f.crewId); err != nil {
		t.Fatal(err)
	}
	token := requestToken(t, env, f.crewId)

	anon := env.newClient()
	_, err = anon.submitPortalCertificate(token, otherTypeId, map[string]string{
		"certificate_number": "OOW-1",
	}, pdfBytes)
	if statusOf(err) != http.StatusForbidden {
		t.Fatalf("types outside the member's matrix should be forbidden, got %v", err)
	}
}

func TestUploadPortalExpiredToken(t *testing.T) {
	env := setupTestEnv(t)
	f := setupRequestFixture(t, env)

	if _, err := f.admin.createRequest(f.crewId); err != nil {
		t.Fatal(err)
	}
	token := requestToken(t, env, f.crewId)

	result := env.db.Model(&schema.CertificateRequest{}).Where("token = ?", token).
		Update("expires_at", time.Now().UTC().Add(-time.Hour))
	if result.Error != nil {
		t.Fatal(result.Error)
	}

	anon := env.newClient()
	_, err := anon.getPortal(token)
	if statusOf(err) != http.StatusGone {
		t.Fatalf("expired token should 410, got %v", err)
	}
	_, err = anon.submitPortalCertificate(token, f.typeId, map[string]string{"certificate_number": "LATE-1"}, pdfBytes)
	if statusOf(err) != http.StatusGone {
		t.Fatalf("expired token submit should 410, got %v", err)
	}
}
