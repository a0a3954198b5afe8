package gate

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"billing-backend/internal/billing"
	"billing-backend/internal/config"
	"billing-backend/internal/models"
)

// GormUserStore loads users through gorm.
type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) ByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GormTenantStore loads tenants through gorm.
type GormTenantStore struct {
	db *gorm.DB
}

func NewGormTenantStore(db *gorm.DB) *GormTenantStore {
	return &GormTenantStore{db: db}
}

func (s *GormTenantStore) ByID(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.First(&tenant, id).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *GormTenantStore) UpdateStatus(id uint, status string) error {
	return s.db.Model(&models.Tenant{}).Where("id = ?", id).Update("status", status).Error
}

// Default assembles the production pipeline over a gorm database in
// canonical guard order.
func Default(db *gorm.DB, logger *logrus.Logger) *Pipeline {
	return NewPipeline(logger,
		NewMaintenanceGate(config.NewDBSettingsStore(db)),
		NewTokenAuthenticator(),
		NewSessionEpochGuard(NewGormUserStore(db)),
		NewTenantResolver(),
		NewTenantLifecycleGuard(NewGormTenantStore(db)),
		NewSubscriptionLifecycleGuard(billing.NewGormSubscriptionStore(db)),
	)
}
