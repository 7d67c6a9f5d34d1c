package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-gateway/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createNotificationRequestsTable(),
		createDeliveryLogsTable(),
		createProviderConfigsTable(),
		createTemplatesTables(),
		createWebhooksTable(),
	})

	return m.Migrate()
}

func createNotificationRequestsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_notification_requests",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RequestModel{}); err != nil {
				return err
			}
			indexes := []string{
				// Unique per key; the partial predicate keeps legacy blank keys out.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_idempotency_key ON notification_requests (idempotency_key) WHERE idempotency_key <> ''`,
				`CREATE INDEX IF NOT EXISTS idx_requests_status_channel_created ON notification_requests (status, channel, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_requests_scheduled ON notification_requests (scheduled_at) WHERE status = 'QUEUED' AND enqueued_at IS NULL`,
				`CREATE INDEX IF NOT EXISTS idx_requests_retry ON notification_requests (next_retry_at) WHERE status = 'QUEUED' AND next_retry_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_requests_tenant ON notification_requests (tenant_id) WHERE tenant_id IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RequestModel{})
		},
	}
}

func createDeliveryLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_delivery_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryLogModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_logs_request_id ON delivery_logs (notification_request_id, attempt_number)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryLogModel{})
		},
	}
}

func createProviderConfigsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_provider_configs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ProviderConfigModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_provider_configs_scope ON provider_configs (tenant_id, channel, provider_type) WHERE tenant_id IS NOT NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_provider_configs_shared_scope ON provider_configs (channel, provider_type) WHERE tenant_id IS NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProviderConfigModel{})
		},
	}
}

func createTemplatesTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_templates",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TemplateModel{}, &repository.SnippetModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_templates_name ON notification_templates (name)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TemplateModel{}, &repository.SnippetModel{})
		},
	}
}

func createWebhooksTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_webhooks",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WebhookModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_webhooks_active ON webhooks (is_active) WHERE is_active`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookModel{})
		},
	}
}
