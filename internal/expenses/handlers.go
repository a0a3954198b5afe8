package expenses

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"billing-backend/internal/database"
	"billing-backend/internal/models"
)

// HandleListExpenses returns expenses for the tenant, optionally filtered
// by branch and category. Platform scope (tenant 0) lists across tenants.
func HandleListExpenses(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	query := database.DB.Order("incurred_at DESC, id DESC")
	if tenantID != models.PlatformTenantID {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if branchID := c.Query("branch_id"); branchID != "" {
		query = query.Where("branch_id = ?", branchID)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var expenses []models.Expense
	if err := query.Limit(200).Find(&expenses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch expenses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}

// HandleCreateExpense records an expense in the caller's tenant.
func HandleCreateExpense(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	if tenantID == models.PlatformTenantID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Select a tenant via X-Tenant-Id to record expenses"})
		return
	}

	var req struct {
		BranchID    *uint      `json:"branch_id"`
		Category    string     `json:"category" binding:"required"`
		Description string     `json:"description"`
		Amount      int64      `json:"amount" binding:"required,gt=0"`
		IncurredAt  *time.Time `json:"incurred_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.BranchID != nil {
		var branch models.Branch
		if err := database.DB.Where("id = ? AND tenant_id = ?", *req.BranchID, tenantID).First(&branch).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Branch not found in this tenant"})
			return
		}
	}

	incurred := req.IncurredAt
	if incurred == nil {
		now := time.Now()
		incurred = &now
	}

	expense := models.Expense{
		TenantID:    tenantID,
		BranchID:    req.BranchID,
		Category:    req.Category,
		Description: req.Description,
		Amount:      req.Amount,
		IncurredAt:  incurred,
		CreatedBy:   c.GetUint("user_id"),
	}
	if err := database.DB.Create(&expense).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create expense"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"expense": expense})
}

// HandleDeleteExpense removes an expense within the tenant scope.
func HandleDeleteExpense(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	query := database.DB
	if tenantID != models.PlatformTenantID {
		query = query.Where("tenant_id = ?", tenantID)
	}

	var expense models.Expense
	if err := query.First(&expense, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
		return
	}

	if err := database.DB.Delete(&expense).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete expense"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Expense deleted"})
}

// HandleExpenseSummary aggregates totals by category for a date range.
func HandleExpenseSummary(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	query := database.DB.Model(&models.Expense{})
	if tenantID != models.PlatformTenantID {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if from := c.Query("from"); from != "" {
		query = query.Where("incurred_at >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("incurred_at <= ?", to)
	}

	var rows []struct {
		Category string `json:"category"`
		Total    int64  `json:"total"`
		Count    int64  `json:"count"`
	}
	if err := query.Select("category, sum(amount) as total, count(*) as count").Group("category").Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate expenses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": rows})
}
