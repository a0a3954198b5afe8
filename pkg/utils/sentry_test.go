package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRecoveryReportsPanicAndReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		CaptureSentryPanic(c.FullPath(), recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}))
	router.GET("/boom", func(c *gin.Context) {
		panic("kaput")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error": "Internal server error"}`, rec.Body.String())
}

func TestCaptureSentryPanicIgnoresNilRecovery(t *testing.T) {
	require.NotPanics(t, func() {
		CaptureSentryPanic("startup", nil)
	})
}
