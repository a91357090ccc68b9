package jobs

import (
	"fmt"
	"testing"
	"time"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingMailer struct {
	recipients []string
	subjects   []string
}

func (m *recordingMailer) Send(toName, toAddress, subject, htmlBody string) error {
	m.recipients = append(m.recipients, toAddress)
	m.subjects = append(m.subjects, subject)
	return nil
}

func setupDigestTest(t *testing.T) (*gorm.DB, *recordingMailer, *ExpiryDigest) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&schema.User{}, &schema.Vessel{}, &schema.Role{},
		&schema.CrewMember{}, &schema.Certificate{},
	))

	mail := &recordingMailer{}
	return db, mail, NewExpiryDigest(db, mail)
}

func addVesselWithCert(t *testing.T, db *gorm.DB, name string, expiryDays int) {
	vessel := schema.Vessel{Id: uuid.New(), Name: name}
	require.NoError(t, db.Create(&vessel).Error)

	role := schema.Role{Id: uuid.New(), Name: "Master " + name, Position: 1}
	require.NoError(t, db.Create(&role).Error)

	cm := schema.CrewMember{
		Id: uuid.New(), VesselId: vessel.Id, RoleId: role.Id,
		FirstName: "Crew", LastName: name, Email: fmt.Sprintf("crew@%v.test", vessel.Id),
	}
	require.NoError(t, db.Create(&cm).Error)

	expiry := time.Now().UTC().AddDate(0, 0, expiryDays)
	cert := schema.Certificate{
		Id: uuid.New(), CrewMemberId: cm.Id, CertificateTypeId: uuid.New(),
		Status: schema.CertVerified, ExpiryDate: &expiry,
	}
	require.NoError(t, db.Create(&cert).Error)
}

func addAdmin(t *testing.T, db *gorm.DB, email string) {
	require.NoError(t, db.Create(&schema.User{
		Id: uuid.New(), Username: email, Email: email, IsAdmin: true,
	}).Error)
}

func TestExpiryDigest(t *testing.T) {
	db, mail, digest := setupDigestTest(t)

	addAdmin(t, db, "admin@fleet.test")
	addVesselWithCert(t, db, "Aurora", -5)    // expired
	addVesselWithCert(t, db, "Borealis", 10)  // expiring soon
	addVesselWithCert(t, db, "Celestine", 90) // nothing to report

	require.NoError(t, digest.Run())

	// One email per vessel with findings, none for the healthy vessel.
	require.Len(t, mail.recipients, 2)
	assert.Contains(t, mail.subjects[0], "Aurora")
	assert.Contains(t, mail.subjects[1], "Borealis")
}

func TestExpiryDigestMultipleAdmins(t *testing.T) {
	db, mail, digest := setupDigestTest(t)

	addAdmin(t, db, "one@fleet.test")
	addAdmin(t, db, "two@fleet.test")
	addVesselWithCert(t, db, "Aurora", -5)

	require.NoError(t, digest.Run())

	assert.ElementsMatch(t, []string{"one@fleet.test", "two@fleet.test"}, mail.recipients)
}

func TestExpiryDigestSkipsWithoutAdmins(t *testing.T) {
	db, mail, digest := setupDigestTest(t)

	addVesselWithCert(t, db, "Aurora", -5)

	require.NoError(t, digest.Run())
	assert.Empty(t, mail.recipients)
}

func TestExpiryDigestNothingToReport(t *testing.T) {
	db, mail, digest := setupDigestTest(t)

	addAdmin(t, db, "admin@fleet.test")
	addVesselWithCert(t, db, "Aurora", 200)

	require.NoError(t, digest.Run())
	assert.Empty(t, mail.recipients)
}
