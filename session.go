package authdb

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const (
	// AccountKey is the gin context key RequireAccount stores the account under.
	AccountKey = "authdb.account"
	// TokenKey holds the raw token RequireAccount resolved.
	TokenKey     = "authdb.token"
	RequestIDKey = "request_id"

	requestIDHeader = "X-Request-ID"
)

type SessionConfig struct {
	// CookieName is checked when no Authorization header is present.
	CookieName string
}

// SessionHandler exposes a TokenStore over HTTP with gin.
type SessionHandler[A any] struct {
	store  *TokenStore[A]
	config SessionConfig
	logger *slog.Logger
}

func NewSessionHandler[A any](store *TokenStore[A], config SessionConfig, logger *slog.Logger) *SessionHandler[A] {
	if logger == nil {
		logger = discardLogger()
	}
	return &SessionHandler[A]{store: store, config: config, logger: logger}
}

// Register mounts the account routes on r.
func (h *SessionHandler[A]) Register(r gin.IRouter) {
	accounts := r.Group("/accounts")
	accounts.GET("/:token", h.getAccount)
	accounts.PUT("/:token", h.putAccount)
	accounts.DELETE("/:token", h.deleteAccount)
	accounts.GET("/:token/ttl", h.accountTTL)
}

func (h *SessionHandler[A]) getAccount(c *gin.Context) {
	account, err := h.store.GetAccount(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *SessionHandler[A]) putAccount(c *gin.Context) {
	var account A
	if err := c.ShouldBindJSON(&account); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid account body"})
		return
	}
	if err := h.store.AddAccount(c.Request.Context(), c.Param("token"), account); err != nil {
		h.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler[A]) deleteAccount(c *gin.Context) {
	if err := h.store.RemoveAccount(c.Request.Context(), c.Param("token")); err != nil {
		h.abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler[A]) accountTTL(c *gin.Context) {
	remaining, err := h.store.Expiry(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.abort(c, err)
		return
	}
	seconds, expires := TTLSeconds(remaining)
	c.JSON(http.StatusOK, gin.H{"ttl_seconds": seconds, "expires": expires})
}

// RequireAccount rejects requests whose token has no live account and
// makes the account available to later handlers via AccountFrom.
func (h *SessionHandler[A]) RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := h.tokenFromRequest(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		account, err := h.store.GetAccount(c.Request.Context(), token)
		if err != nil {
			if IsNotFound(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			h.abort(c, err)
			return
		}

		c.Set(TokenKey, token)
		c.Set(AccountKey, account)
		c.Next()
	}
}

// AccountFrom returns the account RequireAccount stored in c.
func AccountFrom[A any](c *gin.Context) (A, bool) {
	v, ok := c.Get(AccountKey)
	if !ok {
		var zero A
		return zero, false
	}
	account, ok := v.(A)
	return account, ok
}

func (h *SessionHandler[A]) tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if h.config.CookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(h.config.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *SessionHandler[A]) abort(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String(RequestIDKey, c.GetString(RequestIDKey)),
			slog.Any("error", err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, KindNotFound.String()
	case errors.Is(err, ErrBackend):
		return http.StatusServiceUnavailable, KindBackend.String()
	case errors.Is(err, ErrEncode):
		return http.StatusBadRequest, KindEncode.String()
	case errors.Is(err, ErrCorruptData):
		return http.StatusInternalServerError, KindCorruptData.String()
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// RequestID tags every request with an X-Request-ID, generating a ULID
// when the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
