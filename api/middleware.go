package api

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerAccessToken   = "x-access-token"
	headerAPIKey        = "x-api-key"
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Auth wraps handlers that need a caller identity. The resolved user is
// handed to the wrapped handler as an argument.
type Auth struct {
	users    Authenticator
	adminKey string
}

func NewAuth(users Authenticator, adminKey string) *Auth {
	return &Auth{users: users, adminKey: adminKey}
}

func (a *Auth) Required(fn func(c *gin.Context, user *domain.User)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := accessToken(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		user, err := a.users.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		fn(c, user)
	}
}

// Admin gates fn on the configured x-api-key. Session tokens never grant
// admin access, whatever role the user registered with.
func (a *Auth) Admin(fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerAPIKey)
		if key == "" || a.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.adminKey)) != 1 {
			abortWithError(c, domain.ErrUnauthorized)
			return
		}
		fn(c)
	}
}

// accessToken reads x-access-token, falling back to a bearer Authorization
// header.
func accessToken(c *gin.Context) (string, error) {
	if token := strings.TrimSpace(c.GetHeader(headerAccessToken)); token != "" {
		return token, nil
	}
	header := strings.TrimSpace(c.GetHeader(headerAuthorization))
	if header == "" {
		return "", domain.ErrAuthMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", domain.ErrAuthMalformed
	}
	return strings.TrimSpace(token), nil
}

// RequestID keeps an incoming X-Request-ID or assigns a new one, and echoes
// it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := c.GetString(headerRequestID); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, zap.Error(err.Err))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Info("request rejected", fields...)
		default:
			log.Debug("request served", fields...)
		}
	}
}

func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
