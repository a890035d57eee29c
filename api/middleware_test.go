package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{domain.Invalid("bad"), http.StatusBadRequest},
		{domain.ErrUsernameTaken, http.StatusConflict},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrAuthMissing, http.StatusForbidden},
		{domain.ErrAuthMalformed, http.StatusForbidden},
		{domain.ErrAuthExpired, http.StatusForbidden},
		{domain.ErrUnknownUser, http.StatusForbidden},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrTrainNotFound, http.StatusNotFound},
		{fmt.Errorf("reserve: %w", domain.ErrSoldOut), http.StatusConflict},
		{fmt.Errorf("wait for train 1: %w: %w", domain.ErrLockTimeout, context.DeadlineExceeded), http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusOf(tc.err))
		})
	}
}

func TestAccessToken(t *testing.T) {
	testCases := []struct {
		name        string
		headers     map[string]string
		expected    string
		expectedErr error
	}{
		{"x-access-token", map[string]string{headerAccessToken: "abc"}, "abc", nil},
		{"bearer", map[string]string{headerAuthorization: "Bearer abc"}, "abc", nil},
		{"bearer lower case", map[string]string{headerAuthorization: "bearer abc"}, "abc", nil},
		{"x-access-token wins", map[string]string{headerAccessToken: "a", headerAuthorization: "Bearer b"}, "a", nil},
		{"missing", nil, "", domain.ErrAuthMissing},
		{"basic", map[string]string{headerAuthorization: "Basic abc"}, "", domain.ErrAuthMalformed},
		{"bearer without token", map[string]string{headerAuthorization: "Bearer "}, "", domain.ErrAuthMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				c.Request.Header.Set(k, v)
			}

			token, err := accessToken(c)
			assert.Equal(t, tc.expected, token)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestAuth_Admin_NoKeyConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	called := false
	router.POST("/admin", NewAuth(&MockUserUseCase{}, "").Admin(func(c *gin.Context) { called = true }))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(headerAPIKey, "")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(headerAPIKey, "anything")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, called)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogger(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/fail", func(c *gin.Context) { abortWithError(c, errors.New("db down")) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, 1, logs.FilterMessage("request served").Len())
	failed := logs.FilterMessage("request failed").All()
	if assert.Len(t, failed, 1) {
		assert.Equal(t, zap.ErrorLevel, failed[0].Level)
		assert.Equal(t, "db down", failed[0].ContextMap()["error"])
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/trains/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/trains/1", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/trains/2", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/trains/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")))
}

func TestRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), RequestLogger(zap.New(core)))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(headerRequestID, "req-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(headerRequestID))
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()["request_id"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Len(t, w.Header().Get(headerRequestID), 36)
}
