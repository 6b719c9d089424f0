// Package certificates validates intern completion requests and drives a
// request through rendering, conversion, delivery and logging.
package certificates

import (
	"strconv"
	"strings"
	"time"

	"certificate-portal/certificate-portal-backend/internal/ledger"
)

// DateLayout formats record dates, e.g. "01 January 2025"
const DateLayout = "02 January 2006"

// InputDateLayout is the layout of dates submitted by the form
const InputDateLayout = "2006-01-02"

// Grades accepted by the form, best first
var Grades = []string{"A+", "A", "B+", "B", "C"}

// Delivery status values
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Request is the submitted form. Text fields are trimmed before validation.
type Request struct {
	Name      string    `json:"name" form:"name" validate:"required"`
	Domain    string    `json:"domain" form:"domain" validate:"required"`
	Months    int       `json:"month" form:"month" validate:"required,min=1,max=12"`
	StartDate time.Time `json:"start_date" form:"start_date" time_format:"2006-01-02" validate:"required"`
	EndDate   time.Time `json:"end_date" form:"end_date" time_format:"2006-01-02" validate:"required,gtefield=StartDate"`
	Email     string    `json:"email" form:"email" validate:"required,addr"`
	Grade     string    `json:"grade" form:"grade" validate:"required,oneof=A+ A B+ B C"`
}

// Normalize trims every text field
func (r *Request) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Domain = strings.TrimSpace(r.Domain)
	r.Email = strings.TrimSpace(r.Email)
	r.Grade = strings.TrimSpace(r.Grade)
}

// Record is a validated request with its identifier. Only Status changes,
// and only until the row is logged.
type Record struct {
	ID        string    `json:"certificate_id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Months    int       `json:"month"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Email     string    `json:"email"`
	Grade     string    `json:"grade"`
	Status    string    `json:"status"`
}

// NewRecord creates a pending record from a validated request
func NewRecord(req Request, id string) *Record {
	return &Record{
		ID:        id,
		Name:      req.Name,
		Domain:    req.Domain,
		Months:    req.Months,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Email:     req.Email,
		Grade:     req.Grade,
		Status:    StatusPending,
	}
}

// FormattedStart returns the start date in DateLayout
func (r *Record) FormattedStart() string {
	return r.StartDate.Format(DateLayout)
}

// FormattedEnd returns the end date in DateLayout
func (r *Record) FormattedEnd() string {
	return r.EndDate.Format(DateLayout)
}

// Fields maps template placeholders to record values
func (r *Record) Fields() map[string]string {
	return map[string]string{
		"name":       r.Name,
		"domain":     r.Domain,
		"month":      strconv.Itoa(r.Months),
		"start_date": r.FormattedStart(),
		"end_date":   r.FormattedEnd(),
		"grade":      r.Grade,
		"c_id":       r.ID,
		"email":      r.Email,
	}
}

// Summary is the text encoded into the scannable code
func (r *Record) Summary() string {
	return strings.Join([]string{
		r.Name,
		r.Domain,
		strconv.Itoa(r.Months),
		r.FormattedStart(),
		r.FormattedEnd(),
		r.Grade,
		r.ID,
		r.Email,
	}, ", ")
}

// LedgerRow converts the record into its ledger row
func (r *Record) LedgerRow() ledger.Row {
	return ledger.Row{
		Name:          r.Name,
		Domain:        r.Domain,
		Duration:      strconv.Itoa(r.Months),
		StartDate:     r.FormattedStart(),
		EndDate:       r.FormattedEnd(),
		Grade:         r.Grade,
		CertificateID: r.ID,
		Email:         r.Email,
		Status:        r.Status,
	}
}

// ArtifactName returns the delivered file name for ext (with leading dot)
func (r *Record) ArtifactName(ext string) string {
	return "Certificate_" + r.Name + ext
}
