package seed

import (
	"os"
	"path/filepath"
	"testing"

	"crewcert/fleet/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const seedYaml = `
roles:
  - name: Master
  - name: Chief Officer
  - name: Cook

certificate_types:
  - code: STCW-BST
    name: Basic Safety Training
    validity_period_months: 60
  - code: SEA-BOOK
    name: Seaman's Book
`

func setupSeedTest(t *testing.T) (*gorm.DB, File) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schema.Role{}, &schema.CertificateType{}))

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYaml), 0644))

	file, err := Load(path)
	require.NoError(t, err)

	return db, file
}

func TestSeedApply(t *testing.T) {
	db, file := setupSeedTest(t)

	require.NoError(t, Apply(db, file))

	var roles []schema.Role
	require.NoError(t, db.Order("position").Find(&roles).Error)
	require.Len(t, roles, 3)
	assert.Equal(t, "Master", roles[0].Name)
	assert.Equal(t, 1, roles[0].Position)
	assert.Equal(t, "Cook", roles[2].Name)
	assert.Equal(t, 3, roles[2].Position)

	var types []schema.CertificateType
	require.NoError(t, db.Order("code").Find(&types).Error)
	require.Len(t, types, 2)
	assert.Equal(t, "SEA-BOOK", types[0].Code)
	assert.Nil(t, types[0].ValidityPeriodMonths)
	require.NotNil(t, types[1].ValidityPeriodMonths)
	assert.Equal(t, 60, *types[1].ValidityPeriodMonths)
}

func TestSeedApplyIsIdempotent(t *testing.T) {
	db, file := setupSeedTest(t)

	require.NoError(t, Apply(db, file))
	require.NoError(t, Apply(db, file))

	var roleCount, typeCount int64
	require.NoError(t, db.Model(&schema.Role{}).Count(&roleCount).Error)
	require.NoError(t, db.Model(&schema.CertificateType{}).Count(&typeCount).Error)
	assert.EqualValues(t, 3, roleCount)
	assert.EqualValues(t, 2, typeCount)
}

func TestSeedPreservesExistingRows(t *testing.T) {
	db, file := setupSeedTest(t)

	// An operator already renamed positions by hand, seeding must not touch
	// the existing row.
	require.NoError(t, db.Create(&schema.Role{Id: uuid.New(), Name: "Master", Position: 7}).Error)

	require.NoError(t, Apply(db, file))

	var master schema.Role
	require.NoError(t, db.First(&master, "name = ?", "Master").Error)
	assert.Equal(t, 7, master.Position)

	// New roles slot in after the existing maximum.
	var chief schema.Role
	require.NoError(t, db.First(&chief, "name = ?", "Chief Officer").Error)
	assert.Equal(t, 8, chief.Position)
}

func TestSeedLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
