package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_reminders",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ReminderModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders (scheduled_date) WHERE status = 'PENDING'`,
					`CREATE INDEX IF NOT EXISTS idx_reminders_invoice_date ON reminders (invoice_id, scheduled_date)`,
					`CREATE INDEX IF NOT EXISTS idx_reminders_stuck ON reminders (last_attempt_at) WHERE status = 'IN_PROGRESS'`,
					`CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders (user_id)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ReminderModel{})
			},
		},
		{
			ID: "000002_create_dispatch_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DispatchAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatch_attempts_reminder_id ON dispatch_attempts (reminder_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DispatchAttemptModel{})
			},
		},
		{
			ID: "000003_create_invoices",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.Invoice{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices (user_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&domain.Invoice{})
			},
		},
		{
			ID: "000004_create_settings_profiles",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.ReminderSettings{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&domain.BusinessProfile{})
			},
			Rollback: func(tx *gorm.DB) error {
				if err := tx.Migrator().DropTable(&domain.ReminderSettings{}); err != nil {
					return err
				}
				return tx.Migrator().DropTable(&domain.BusinessProfile{})
			},
		},
	})

	return m.Migrate()
}
