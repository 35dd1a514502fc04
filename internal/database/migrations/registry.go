package migrations

import (
	"github.com/jmylchreest/screenrec/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns the catalog migrations in order.
//   - 001: recordings table
//   - 002: index for listing recordings by codec
func AllMigrations() []Migration {
	return []Migration{
		migration001Recordings(),
		migration002CodecIndex(),
	}
}

func migration001Recordings() Migration {
	return Migration{
		Version:     "001",
		Description: "Create recordings table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Recording{})
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.Recording{})
		},
	}
}

const codecIndex = "idx_recordings_codec_saved_at"

func migration002CodecIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Index recordings by video codec and save time",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Recording{}, codecIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + codecIndex + " ON recordings (video_codec, saved_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.Recording{}, codecIndex) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.Recording{}, codecIndex)
		},
	}
}
