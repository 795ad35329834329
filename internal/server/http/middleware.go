package httpserver

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/edrozo/tasksync/internal/metrics"
)

const ownerIDKey = "tasksync.ownerID"

// ownerID returns the authenticated owner id set by requireAuth.
func ownerID(c *gin.Context) uuid.UUID {
	v, ok := c.Get(ownerIDKey)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.(uuid.UUID)
	return id
}

// requireAuth verifies the bearer token and resolves the owner id from its
// subject. The owner is never client-supplied.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			s.abortUnauthorized(c, "Authentication token required")
			return
		}

		var claims jwt.RegisteredClaims
		parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return s.signKey, nil
		})
		switch {
		case err != nil && errors.Is(err, jwt.ErrTokenExpired):
			s.abortUnauthorized(c, "Token expired")
			return
		case err != nil || !parsed.Valid:
			s.abortUnauthorized(c, "Invalid token")
			return
		}

		id, err := uuid.FromString(claims.Subject)
		if err != nil {
			s.abortUnauthorized(c, "Invalid token")
			return
		}
		c.Set(ownerIDKey, id)
		c.Next()
	}
}

func (s *Server) abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{Success: false, Message: message})
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[7:])
	return tok, tok != ""
}

// requestLogger logs request metadata (never payloads) and feeds the HTTP
// request counter.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		metrics.IncHTTP(route, strconv.Itoa(code))
		s.log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", code),
			zap.Duration("dur", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}

// recovery turns panics into a generic 500 without leaking a stack trace.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					envelope{Success: false, Message: "Internal server error"})
			}
		}()
		c.Next()
	}
}
