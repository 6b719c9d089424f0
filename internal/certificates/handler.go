package certificates

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ArtifactLinker returns a temporary download URL for an archived artifact
type ArtifactLinker interface {
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

const downloadURLTTL = 15 * time.Minute

// Handler serves the certificate form, results and downloads
type Handler struct {
	service   Service
	linker    ArtifactLinker
	logger    *zap.Logger
	artifacts *artifactRegistry
}

// NewHandler creates a new certificates handler. linker may be nil when
// artifacts are not archived.
func NewHandler(service Service, linker ArtifactLinker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:   service,
		linker:    linker,
		logger:    logger,
		artifacts: newArtifactRegistry(artifactRetention),
	}
}

// RegisterRoutes registers the form and certificate routes
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/", h.showForm)
	certificates := router.Group("/certificates")
	{
		certificates.POST("", h.issue)
		certificates.GET("/:id/download", h.download)
	}
}

// issueForm is the submitted form before date parsing
type issueForm struct {
	Name      string      `form:"name" json:"name"`
	Domain    string      `form:"domain" json:"domain"`
	Months    json.Number `form:"month" json:"month"`
	StartDate string      `form:"start_date" json:"start_date"`
	EndDate   string      `form:"end_date" json:"end_date"`
	Email     string      `form:"email" json:"email"`
	Grade     string      `form:"grade" json:"grade"`
}

func (f issueForm) values() map[string]string {
	return map[string]string{
		"name":       f.Name,
		"domain":     f.Domain,
		"month":      f.Months.String(),
		"start_date": f.StartDate,
		"end_date":   f.EndDate,
		"email":      f.Email,
		"grade":      f.Grade,
	}
}

// request parses dates and the month count. Malformed values are reported
// the same way as failed validation.
func (f issueForm) request() (Request, error) {
	req := Request{
		Name:   f.Name,
		Domain: f.Domain,
		Email:  f.Email,
		Grade:  f.Grade,
	}
	fields := map[string]string{}

	if s := strings.TrimSpace(f.Months.String()); s != "" {
		months, err := strconv.Atoi(s)
		if err != nil {
			fields["month"] = "must be a whole number"
		}
		req.Months = months
	}
	for _, d := range []struct {
		field string
		value string
		dst   *time.Time
	}{
		{"start_date", f.StartDate, &req.StartDate},
		{"end_date", f.EndDate, &req.EndDate},
	} {
		s := strings.TrimSpace(d.value)
		if s == "" {
			continue
		}
		t, err := time.Parse(InputDateLayout, s)
		if err != nil {
			fields[d.field] = "must be a date (YYYY-MM-DD)"
			continue
		}
		*d.dst = t
	}

	if len(fields) > 0 {
		return req, &ValidationError{Fields: fields}
	}
	return req, nil
}

// showForm handles GET /
func (h *Handler) showForm(c *gin.Context) {
	h.renderForm(c, http.StatusOK, issueForm{Months: "1", Grade: Grades[0]}, nil)
}

// issue handles POST /certificates
func (h *Handler) issue(c *gin.Context) {
	wantsJSON := c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON

	var form issueForm
	if err := c.ShouldBind(&form); err != nil {
		if wantsJSON {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.renderForm(c, http.StatusBadRequest, form, map[string]string{"month": err.Error()})
		return
	}

	req, err := form.request()
	if err != nil {
		h.reject(c, wantsJSON, form, err)
		return
	}

	outcome, err := h.service.Issue(c.Request.Context(), req)
	var verr *ValidationError
	if errors.As(err, &verr) {
		h.reject(c, wantsJSON, form, verr)
		return
	}

	downloadURL := ""
	if outcome.HasArtifact() {
		h.artifacts.store(outcome.RequestID, artifact{
			path:       outcome.ArtifactPath,
			name:       outcome.ArtifactName,
			archiveKey: outcome.ArchiveKey,
		})
		downloadURL = "/certificates/" + outcome.RequestID + "/download"
	}

	if wantsJSON {
		c.JSON(http.StatusOK, gin.H{
			"outcome":      outcome,
			"delivered":    outcome.Delivered(),
			"download_url": downloadURL,
		})
		return
	}

	page, err := renderPage(pages.result, resultView{
		Title:       "Certificate result",
		Outcome:     outcome,
		DownloadURL: downloadURL,
	})
	if err != nil {
		h.logger.Error("Failed to render result page", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed to render page")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (h *Handler) reject(c *gin.Context, wantsJSON bool, form issueForm, err error) {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if wantsJSON {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  verr.Error(),
			"fields": verr.Fields,
		})
		return
	}
	h.renderForm(c, http.StatusUnprocessableEntity, form, verr.Fields)
}

func (h *Handler) renderForm(c *gin.Context, status int, form issueForm, errs map[string]string) {
	page, err := renderPage(pages.form, formView{
		Title:  "Internship completion certificate",
		Fields: formFields,
		Grades: Grades,
		Months: monthOptions,
		Values: form.values(),
		Errors: errs,
	})
	if err != nil {
		h.logger.Error("Failed to render form", zap.Error(err))
		c.String(http.StatusInternalServerError, "failed to render page")
		return
	}
	c.Data(status, "text/html; charset=utf-8", page)
}

// download handles GET /certificates/:id/download
func (h *Handler) download(c *gin.Context) {
	a, ok := h.artifacts.load(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "certificate not found"})
		return
	}

	if _, err := os.Stat(a.path); err == nil {
		c.FileAttachment(a.path, a.name)
		return
	}

	if a.archiveKey == "" || h.linker == nil {
		c.JSON(http.StatusGone, gin.H{"error": "certificate is no longer available"})
		return
	}

	url, err := h.linker.URL(c.Request.Context(), a.archiveKey, downloadURLTTL)
	if err != nil {
		h.logger.Error("Failed to presign certificate download", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create download link"})
		return
	}
	c.Redirect(http.StatusFound, url)
}
