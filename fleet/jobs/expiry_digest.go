package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"crewcert/fleet/mailer"
	"crewcert/fleet/schema"
	"crewcert/utils"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// ExpiryDigest mails fleet admins a per vessel summary of expired and
// expiring certificates once a day. Vessels with nothing to report are
// skipped, as is the whole run when no vessel has findings.
type ExpiryDigest struct {
	db     *gorm.DB
	mailer mailer.Mailer
}

func NewExpiryDigest(db *gorm.DB, mailer mailer.Mailer) *ExpiryDigest {
	return &ExpiryDigest{db: db, mailer: mailer}
}

// Schedule registers the digest on the given cron runner, daily at 06:00.
func (d *ExpiryDigest) Schedule(c *cron.Cron) error {
	_, err := c.AddFunc("0 6 * * *", func() {
		if err := d.Run(); err != nil {
			slog.Error("expiry digest run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling expiry digest: %w", err)
	}
	return nil
}

func (d *ExpiryDigest) Run() error {
	today := utils.Today()

	var vessels []schema.Vessel
	if result := d.db.Order("name").Find(&vessels); result.Error != nil {
		slog.Error("sql error listing vessels for digest", "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	var admins []schema.User
	if result := d.db.Where("is_admin = ?", true).Find(&admins); result.Error != nil {
		slog.Error("sql error listing admins for digest", "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if len(admins) == 0 {
		slog.Info("expiry digest skipped, no admin recipients")
		return nil
	}

	sent := 0
	for _, vessel := range vessels {
		expired, expiring, err := d.vesselCounts(vessel.Id, today)
		if err != nil {
			return err
		}
		if expired == 0 && expiring == 0 {
			continue
		}

		subject, body := mailer.ExpiryDigestEmail(vessel.Name, expired, expiring)
		for _, admin := range admins {
			if err := d.mailer.Send(admin.Username, admin.Email, subject, body); err != nil {
				slog.Error("error sending expiry digest", "vessel_id", vessel.Id,
					"recipient", admin.Email, "error", err)
				continue
			}
			sent++
		}
	}

	slog.Info("expiry digest completed", "emails_sent", sent)
	return nil
}

func (d *ExpiryDigest) vesselCounts(vesselId uuid.UUID, today time.Time) (expired, expiring int, err error) {
	var expiredCount, expiringCount int64

	base := func() *gorm.DB {
		return d.db.Model(&schema.Certificate{}).
			Joins("JOIN crew_members ON crew_members.id = certificates.crew_member_id").
			Where("crew_members.vessel_id = ?", vesselId)
	}

	if result := schema.ExpiredCerts(base(), today).Count(&expiredCount); result.Error != nil {
		slog.Error("sql error counting expired certificates", "vessel_id", vesselId, "error", result.Error)
		return 0, 0, schema.ErrDbAccessFailed
	}
	if result := schema.ExpiringSoonCerts(base(), today).Count(&expiringCount); result.Error != nil {
		slog.Error("sql error counting expiring certificates", "vessel_id", vesselId, "error", result.Error)
		return 0, 0, schema.ErrDbAccessFailed
	}

	return int(expiredCount), int(expiringCount), nil
}
