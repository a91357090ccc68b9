package tests

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"crewcert/fleet/auth"
	"crewcert/fleet/jobs"
	"crewcert/fleet/ocr"
	"crewcert/fleet/schema"
	"crewcert/fleet/services"
	"crewcert/fleet/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"

	testPublicUrl = "http://fleet.test"
)

type sentMail struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

// stubMailer records every send and can be told to fail for specific
// addresses, which the bulk send tests rely on.
type stubMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	failFor map[string]bool
}

func newStubMailer() *stubMailer {
	return &stubMailer{failFor: map[string]bool{}}
}

func (m *stubMailer) Send(toName, toAddress, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[toAddress] {
		return fmt.Errorf("simulated mail failure for %v", toAddress)
	}
	m.sent = append(m.sent, sentMail{ToName: toName, ToAddress: toAddress, Subject: subject, Body: htmlBody})
	return nil
}

func (m *stubMailer) sentTo(address string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, mail := range m.sent {
		if mail.ToAddress == address {
			out = append(out, mail)
		}
	}
	return out
}

// stubExtractor returns a canned result for every document.
type stubExtractor struct {
	result ocr.Result
	err    error
}

func (e *stubExtractor) Extract(ctx context.Context, document io.Reader, contentType string) (ocr.Result, error) {
	return e.result, e.err
}

type testEnv struct {
	api    chi.Router
	db     *gorm.DB
	mailer *stubMailer
}

func setupTestEnv(t *testing.T) testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.User{}, &schema.Vessel{}, &schema.Role{}, &schema.CertificateType{},
		&schema.MatrixRequirement{}, &schema.CrewMember{}, &schema.Certificate{},
		&schema.CertificateRequest{},
	)
	if err != nil {
		t.Fatal(err)
	}

	identityProvider, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(io.Discard),
		auth.BasicProviderArgs{
			Secret:        []byte("test-secret"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	mail := newStubMailer()
	extractor := &stubExtractor{result: ocr.Result{Success: false, ExtractionMethod: "stub"}}

	store := storage.NewSharedDisk(t.TempDir())
	extraction := jobs.NewExtractionRunner(db, store, extractor)
	platform := services.NewPlatform(db, store, identityProvider, mail, extraction, testPublicUrl)

	return testEnv{api: platform.Routes(), db: db, mailer: mail}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient(test *testing.T) client {
	c := t.newClient()
	if err := c.login(adminEmail, adminPassword); err != nil {
		test.Fatal(err)
	}
	return c
}

func daysFromNow(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format("2006-01-02")
}
