package audit

import (
	"log"

	"billing-backend/internal/database"
	"billing-backend/internal/models"
)

// Entry describes one auditable event. Writes are best-effort: an audit
// failure is logged and swallowed so it can never block the request itself.
type Entry struct {
	RequestID string
	UserID    uint
	TenantID  uint
	Action    string
	Resource  string
	Details   string
	IPAddress string
	UserAgent string
}

// Record persists an audit entry.
func Record(entry Entry) {
	if database.DB == nil {
		return
	}
	row := models.AuditLog{
		RequestID: entry.RequestID,
		UserID:    entry.UserID,
		TenantID:  entry.TenantID,
		Action:    entry.Action,
		Resource:  entry.Resource,
		Details:   entry.Details,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
	}
	if err := database.DB.Create(&row).Error; err != nil {
		log.Printf("Failed to write audit log entry for %s: %v", entry.Action, err)
	}
}
