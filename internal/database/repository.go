package database

import (
	"context"

	"github.com/flowpbx/sccpd/internal/database/models"
	"github.com/flowpbx/sccpd/internal/sccp"
)

// SystemConfigRepository manages key-value system configuration.
type SystemConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetAll(ctx context.Context) ([]models.SystemConfig, error)
}

// AdminUserRepository manages admin API users.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByID(ctx context.Context, id int64) (*models.AdminUser, error)
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	List(ctx context.Context) ([]models.AdminUser, error)
	Update(ctx context.Context, user *models.AdminUser) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// ProvisioningRepository stores the line and device configuration as one
// document.
type ProvisioningRepository interface {
	Load(ctx context.Context) (sccp.Provisioning, error)
	Save(ctx context.Context, p sccp.Provisioning) error
}

// DeviceMessageRepository stores phone prompt messages. It satisfies
// sccp.MessageStore.
type DeviceMessageRepository interface {
	sccp.MessageStore
	List(ctx context.Context) ([]models.DeviceMessage, error)
}
