package seed

import (
	"fmt"
	"log/slog"
	"os"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// File describes the reference data loaded on first boot: the standard rank
// ladder and the certificate type catalogue. Seeding is idempotent, entries
// that already exist by name or code are left alone.
type File struct {
	Roles []RoleSeed            `yaml:"roles"`
	Types []CertificateTypeSeed `yaml:"certificate_types"`
}

type RoleSeed struct {
	Name string `yaml:"name"`
}

type CertificateTypeSeed struct {
	Code                 string `yaml:"code"`
	Name                 string `yaml:"name"`
	Description          string `yaml:"description"`
	ValidityPeriodMonths *int   `yaml:"validity_period_months"`
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("error reading seed file %v: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("error parsing seed file %v: %w", path, err)
	}

	return file, nil
}

// Apply inserts missing roles and certificate types in one transaction. Role
// positions follow the order in the file.
func Apply(db *gorm.DB, file File) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var maxPosition int
		result := txn.Model(&schema.Role{}).Select("COALESCE(MAX(position), 0)").Scan(&maxPosition)
		if result.Error != nil {
			slog.Error("sql error finding max role position during seed", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		for _, role := range file.Roles {
			var existing schema.Role
			result := txn.Limit(1).Find(&existing, "name = ?", role.Name)
			if result.Error != nil {
				slog.Error("sql error checking for seeded role", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			if result.RowsAffected != 0 {
				continue
			}

			maxPosition++
			result = txn.Create(&schema.Role{Id: uuid.New(), Name: role.Name, Position: maxPosition})
			if result.Error != nil {
				slog.Error("sql error seeding role", "name", role.Name, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			slog.Info("seeded role", "name", role.Name, "position", maxPosition)
		}

		for _, ct := range file.Types {
			var existing schema.CertificateType
			result := txn.Limit(1).Find(&existing, "code = ?", ct.Code)
			if result.Error != nil {
				slog.Error("sql error checking for seeded certificate type", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			if result.RowsAffected != 0 {
				continue
			}

			result = txn.Create(&schema.CertificateType{
				Id:                   uuid.New(),
				Code:                 ct.Code,
				Name:                 ct.Name,
				Description:          ct.Description,
				ValidityPeriodMonths: ct.ValidityPeriodMonths,
			})
			if result.Error != nil {
				slog.Error("sql error seeding certificate type", "code", ct.Code, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			slog.Info("seeded certificate type", "code", ct.Code)
		}

		return nil
	})
}
