package admin

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"certificate-portal/certificate-portal-backend/internal/ledger"
	"certificate-portal/certificate-portal-backend/internal/ledger/export"
)

const (
	// SessionCookie holds the signed admin session
	SessionCookie = "admin_session"
	// KeyHeader authenticates API clients without a session
	KeyHeader = "X-Admin-Key"

	exportBaseName = "certificate_ledger"
)

// LedgerStore is the admin view of the ledger
type LedgerStore interface {
	ReadAll(ctx context.Context) (*ledger.Table, error)
	Replace(ctx context.Context, table *ledger.Table) error
}

// Handler handles the admin panel
type Handler struct {
	ledger   LedgerStore
	sessions *Sessions
	timeout  time.Duration
	secure   bool
	logger   *zap.Logger
}

// Options configures the admin handler
type Options struct {
	// Timeout bounds ledger reads and replacements, zero disables it
	Timeout time.Duration
	// SecureCookie marks the session cookie Secure
	SecureCookie bool
}

// NewHandler creates a new admin handler
func NewHandler(store LedgerStore, sessions *Sessions, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ledger:   store,
		sessions: sessions,
		timeout:  opts.Timeout,
		secure:   opts.SecureCookie,
		logger:   logger,
	}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	admin := router.Group("/admin")
	{
		admin.GET("", h.showLogin)
		admin.POST("/login", h.login)
		admin.POST("/logout", h.logout)

		protected := admin.Group("", h.requireAdmin)
		protected.GET("/ledger", h.viewLedger)
		protected.GET("/ledger/download", h.downloadLedger)
		protected.POST("/ledger/upload", h.uploadLedger)
	}
}

func wantsJSON(c *gin.Context) bool {
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

// requireAdmin accepts the admin key header or a valid session cookie
func (h *Handler) requireAdmin(c *gin.Context) {
	if key := c.GetHeader(KeyHeader); key != "" {
		if h.sessions.CheckKey(key) {
			c.Next()
			return
		}
		h.logger.Warn("Rejected admin key", zap.String("client_ip", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
		return
	}

	if token, err := c.Cookie(SessionCookie); err == nil {
		if err := h.sessions.Verify(token); err == nil {
			c.Next()
			return
		}
	}

	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin authentication required"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin")
	c.Abort()
}

// showLogin handles GET /admin
func (h *Handler) showLogin(c *gin.Context) {
	if token, err := c.Cookie(SessionCookie); err == nil && h.sessions.Verify(token) == nil {
		c.Redirect(http.StatusSeeOther, "/admin/ledger")
		return
	}
	h.page(c, http.StatusOK, loginTemplate, pageView{Title: "Admin sign in"})
}

// login handles POST /admin/login
func (h *Handler) login(c *gin.Context) {
	if !h.sessions.CheckKey(c.PostForm("key")) {
		h.logger.Warn("Failed admin login", zap.String("client_ip", c.ClientIP()))
		if wantsJSON(c) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		h.page(c, http.StatusUnauthorized, loginTemplate, pageView{Title: "Admin sign in", Error: "Invalid admin key."})
		return
	}

	token, err := h.sessions.Issue()
	if err != nil {
		h.logger.Error("Failed to issue admin session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, token, int(h.sessions.TTL().Seconds()), "/admin", "", h.secure, true)
	h.logger.Info("Admin signed in", zap.String("client_ip", c.ClientIP()))

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"expires_in": int(h.sessions.TTL().Seconds())})
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/ledger")
}

// logout handles POST /admin/logout
func (h *Handler) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(SessionCookie, "", -1, "/admin", "", h.secure, true)
	if wantsJSON(c) {
		c.Status(http.StatusNoContent)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin")
}

func (h *Handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func (h *Handler) readLedger(c *gin.Context) (*ledger.Table, bool) {
	ctx, cancel := h.context(c)
	defer cancel()

	table, err := h.ledger.ReadAll(ctx)
	if err != nil {
		h.logger.Error("Failed to read ledger", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return nil, false
	}
	return table.Normalized(), true
}

// viewLedger handles GET /admin/ledger
func (h *Handler) viewLedger(c *gin.Context) {
	table, ok := h.readLedger(c)
	if !ok {
		return
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{
			"header": table.Header,
			"rows":   table.Rows,
			"count":  table.Len(),
		})
		return
	}
	h.page(c, http.StatusOK, ledgerTemplate, pageView{
		Title:  "Certificate ledger",
		Notice: c.Query("notice"),
		Table:  table,
	})
}

// downloadLedger handles GET /admin/ledger/download?format=csv|xlsx|pdf
func (h *Handler) downloadLedger(c *gin.Context) {
	table, ok := h.readLedger(c)
	if !ok {
		return
	}

	file, err := export.Render(c.DefaultQuery("format", export.FormatCSV), exportBaseName, table.Header, table.Rows)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to export ledger", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export ledger"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// uploadLedger handles POST /admin/ledger/upload and overwrites the ledger
func (h *Handler) uploadLedger(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.uploadFailed(c, http.StatusBadRequest, "a ledger file is required")
		return
	}

	f, err := header.Open()
	if err != nil {
		h.uploadFailed(c, http.StatusBadRequest, "failed to open upload")
		return
	}
	defer f.Close()

	table, err := ledger.ParseUpload(header.Filename, f)
	if err != nil {
		h.uploadFailed(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()
	if err := h.ledger.Replace(ctx, table); err != nil {
		h.logger.Error("Failed to replace ledger", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, ledger.ErrSchemaMismatch) {
			status = http.StatusBadRequest
		}
		h.uploadFailed(c, status, "failed to replace ledger: "+err.Error())
		return
	}

	h.logger.Info("Ledger replaced",
		zap.String("filename", header.Filename),
		zap.Int("rows", table.Len()),
	)

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"rows": table.Len()})
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/ledger?notice=Ledger+replaced")
}

func (h *Handler) uploadFailed(c *gin.Context, status int, msg string) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()
	table, err := h.ledger.ReadAll(ctx)
	if err != nil {
		h.logger.Error("Failed to read ledger", zap.Error(err))
	}
	h.page(c, status, ledgerTemplate, pageView{
		Title: "Certificate ledger",
		Error: strings.TrimSpace(msg),
		Table: table.Normalized(),
	})
}

func (h *Handler) page(c *gin.Context, status int, tmpl *template.Template, view pageView) {
	body, err := render(tmpl, view)
	if err != nil {
		h.logger.Error("Failed to render admin page", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed to render page")
		return
	}
	c.Data(status, "text/html; charset=utf-8", body)
}
