package branches

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"billing-backend/internal/database"
	"billing-backend/internal/models"
)

// HandleListBranches returns the tenant's branches.
func HandleListBranches(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	query := database.DB.Order("name ASC")
	if tenantID != models.PlatformTenantID {
		query = query.Where("tenant_id = ?", tenantID)
	}

	var branches []models.Branch
	if err := query.Find(&branches).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch branches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"branches": branches})
}

// HandleCreateBranch creates a branch in the caller's tenant.
func HandleCreateBranch(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")
	if tenantID == models.PlatformTenantID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Select a tenant via X-Tenant-Id to create branches"})
		return
	}

	var req struct {
		Name    string `json:"name" binding:"required"`
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	branch := models.Branch{
		TenantID: tenantID,
		Name:     req.Name,
		Address:  req.Address,
		Active:   true,
	}
	if err := database.DB.Create(&branch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create branch"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"branch": branch})
}

// HandleUpdateBranch updates name, address, or active flag.
func HandleUpdateBranch(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	var branch models.Branch
	query := database.DB
	if tenantID != models.PlatformTenantID {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if err := query.First(&branch, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Branch not found"})
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Address *string `json:"address"`
		Active  *bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) > 0 {
		if err := database.DB.Model(&branch).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update branch"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"branch": branch})
}

// HandleAssignUser scopes a user to a branch.
func HandleAssignUser(c *gin.Context) {
	tenantID := c.GetUint("tenant_id")

	var req struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var branch models.Branch
	query := database.DB
	if tenantID != models.PlatformTenantID {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if err := query.First(&branch, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Branch not found"})
		return
	}

	var user models.User
	if err := database.DB.Where("id = ? AND tenant_id = ?", req.UserID, branch.TenantID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found in this tenant"})
		return
	}

	var existing models.UserBranch
	if err := database.DB.Where("user_id = ? AND branch_id = ?", user.ID, branch.ID).First(&existing).Error; err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "User already assigned"})
		return
	}

	assignment := models.UserBranch{UserID: user.ID, BranchID: branch.ID}
	if err := database.DB.Create(&assignment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign user"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User assigned to branch"})
}
