package bootstrap

import (
	"log"
	"os"
	"strings"

	"gorm.io/gorm"

	"billing-backend/internal/auth"
	"billing-backend/internal/models"
)

// Run seeds the platform administrator and default plans so a fresh install
// is usable without manual SQL.
func Run(db *gorm.DB) {
	if db == nil {
		log.Println("bootstrap: skipping; database not initialized")
		return
	}

	ensurePlatformAdmin(db)
	ensureDefaultPlans(db)
}

func ensurePlatformAdmin(db *gorm.DB) {
	email := strings.TrimSpace(os.Getenv("SUPERADMIN_EMAIL"))
	if email == "" {
		email = "admin@billing.local"
	}
	email = auth.NormalizeEmail(email)

	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err == nil {
		if user.Role != models.RoleSuperAdmin {
			_ = db.Model(&user).Updates(map[string]interface{}{
				"role":      models.RoleSuperAdmin,
				"tenant_id": models.PlatformTenantID,
			}).Error
			log.Printf("bootstrap: promoted %s to platform admin", email)
		}
		return
	}

	password := os.Getenv("SUPERADMIN_PASSWORD")
	if password == "" {
		log.Println("bootstrap: SUPERADMIN_PASSWORD not set, skipping platform admin seed")
		return
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		log.Printf("bootstrap: failed to hash platform admin password: %v", err)
		return
	}

	name := strings.TrimSpace(os.Getenv("SUPERADMIN_NAME"))
	if name == "" {
		name = "Platform Administrator"
	}

	user = models.User{
		Email:    email,
		Password: hashed,
		Name:     name,
		Role:     models.RoleSuperAdmin,
		TenantID: models.PlatformTenantID,
		Active:   true,
	}
	if err := db.Create(&user).Error; err != nil {
		log.Printf("bootstrap: failed to create platform admin %s: %v", email, err)
		return
	}
	log.Printf("bootstrap: created platform admin %s", email)
}

func ensureDefaultPlans(db *gorm.DB) {
	var count int64
	if err := db.Model(&models.Plan{}).Count(&count).Error; err != nil || count > 0 {
		return
	}

	plans := []models.Plan{
		{
			Name:        "starter",
			DisplayName: "Starter",
			Description: "Single branch, up to 5 users",
			Price:       1900,
			Interval:    "month",
			MaxBranches: 1,
			MaxUsers:    5,
			TrialDays:   14,
			Active:      true,
		},
		{
			Name:        "business",
			DisplayName: "Business",
			Description: "Up to 5 branches and 25 users",
			Price:       4900,
			Interval:    "month",
			MaxBranches: 5,
			MaxUsers:    25,
			TrialDays:   14,
			Active:      true,
		},
	}
	for _, plan := range plans {
		if err := db.Create(&plan).Error; err != nil {
			log.Printf("bootstrap: failed to seed plan %s: %v", plan.Name, err)
		}
	}
	log.Printf("bootstrap: seeded %d default plans", len(plans))
}
