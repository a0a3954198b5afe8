package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"billing-backend/internal/activity"
	"billing-backend/internal/auth"
	"billing-backend/internal/billing"
	"billing-backend/internal/bootstrap"
	"billing-backend/internal/branches"
	"billing-backend/internal/config"
	"billing-backend/internal/database"
	"billing-backend/internal/expenses"
	"billing-backend/internal/gate"
	"billing-backend/internal/health"
	"billing-backend/internal/metrics"
	"billing-backend/internal/middleware"
	"billing-backend/internal/models"
	"billing-backend/internal/superadmin"
	"billing-backend/internal/webhooks"
	"billing-backend/pkg/utils"
)

func main() {
	log.Println("🚀 Starting Billing API Server")

	// Initialize Sentry before other subsystems so we capture initialization errors
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		host, _ := os.Hostname()
		opts := sentry.ClientOptions{
			Dsn:         dsn,
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
			Release:     os.Getenv("SENTRY_RELEASE"),
		}
		if host != "" {
			opts.ServerName = host
		}
		if err := sentry.Init(opts); err != nil {
			log.Printf("Sentry initialization failed: %v", err)
		} else {
			sentry.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("service", "billing-backend")
			})
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := database.RunMigrations(
		&models.User{},
		&models.Tenant{},
		&models.Plan{},
		&models.Subscription{},
		&models.LoginLockout{},
		&models.AppSetting{},
		&models.AuditLog{},
		&models.Branch{},
		&models.UserBranch{},
		&models.Expense{},
	); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	bootstrap.Run(database.DB)

	// Initialize auth components
	auth.InitJWT()
	auth.InitOAuth()
	auth.InitLockout()
	billing.InitStripe()

	if err := activity.InitTracker(); err != nil {
		log.Printf("⚠️  Activity tracking disabled: %v", err)
	}

	// Start background tasks
	middleware.StartCleanup()

	// Set up router
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	}))
	router.Use(gin.Logger())
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		utils.CaptureSentryPanic(c.FullPath(), recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))
	router.Use(middleware.RequestID())

	// CORS - MUST be first to handle OPTIONS requests
	router.Use(cors.New(middleware.SecureCORSConfig()))

	// Security middleware - after CORS
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20))
	router.Use(middleware.GeneralRateLimit())

	// Health and telemetry endpoints
	router.GET("/health", health.HandleHealthCheck)
	router.GET("/ready", health.HandleSystemReady)
	router.GET("/metrics", metrics.Handler())

	settingsStore := config.NewDBSettingsStore(database.DB)

	gateLogger := logrus.New()
	gateLogger.SetFormatter(&logrus.JSONFormatter{})
	pipeline := gate.Default(database.DB, gateLogger)

	// API routes
	api := router.Group("/api/v1")
	{
		// Public routes
		api.GET("/plans", billing.HandleGetPlans)
		api.GET("/maintenance-status", health.MaintenanceStatusHandler(settingsStore))
		api.POST("/webhooks/stripe", webhooks.HandleStripeWebhook)

		// Public auth routes
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/login", middleware.LoginRateLimit(), middleware.ValidateLoginInput(), auth.HandleLogin)
			authRoutes.POST("/register", auth.HandleRegister)
			authRoutes.POST("/logout", auth.HandleLogout)
			authRoutes.POST("/password-reset/request", auth.HandleRequestPasswordReset)
			authRoutes.POST("/password-reset/confirm", auth.HandleResetPassword)
			authRoutes.GET("/oauth/:provider", auth.HandleOAuthBegin)
			authRoutes.GET("/oauth/:provider/callback", auth.HandleOAuthCallback)
		}

		// Protected routes behind the gating pipeline
		protected := api.Group("")
		protected.Use(pipeline.Middleware())
		{
			// Profile management
			protected.GET("/auth/profile", auth.HandleGetProfile)
			protected.PUT("/auth/profile", auth.HandleUpdateProfile)
			protected.PUT("/auth/profile/password", auth.HandleChangePassword)
			protected.POST("/auth/mfa/setup", auth.HandleSetupMFA)
			protected.POST("/auth/mfa/enable", auth.HandleEnableMFA)

			protected.GET("/system/metrics", metrics.HandleSystemMetrics)

			// Billing & subscription
			billingRoutes := protected.Group("/billing")
			{
				billingRoutes.GET("/subscription", billing.HandleGetCurrentSubscription)
				billingRoutes.POST("/renew", billing.HandleRenewSubscription)
				billingRoutes.POST("/cancel", billing.HandleCancelSubscription)
			}

			// Branch management
			branchRoutes := protected.Group("/branches")
			{
				branchRoutes.GET("", branches.HandleListBranches)
				branchRoutes.POST("", branches.HandleCreateBranch)
				branchRoutes.PUT("/:id", branches.HandleUpdateBranch)
				branchRoutes.POST("/:id/assign", branches.HandleAssignUser)
			}

			// Expenses
			expenseRoutes := protected.Group("/expenses")
			{
				expenseRoutes.GET("", expenses.HandleListExpenses)
				expenseRoutes.POST("", expenses.HandleCreateExpense)
				expenseRoutes.DELETE("/:id", expenses.HandleDeleteExpense)
				expenseRoutes.GET("/summary", expenses.HandleExpenseSummary)
			}

			// Platform administration
			adminRoutes := protected.Group("/superadmin")
			adminRoutes.Use(superadmin.RequireSuperAdmin())
			{
				adminRoutes.GET("/tenants", superadmin.HandleListTenants)
				adminRoutes.POST("/tenants/:id/suspend", superadmin.HandleSuspendTenant)
				adminRoutes.POST("/tenants/:id/reinstate", superadmin.HandleReinstateTenant)
				adminRoutes.POST("/users/:id/force-logout", superadmin.HandleForceLogout)
				adminRoutes.POST("/maintenance", superadmin.HandleSetMaintenance)
				adminRoutes.GET("/stats", superadmin.HandlePlatformStats)
			}
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("✅ Billing API listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
