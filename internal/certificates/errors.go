package certificates

import (
	"fmt"
	"sort"
	"strings"
)

// Workflow step names used in results, statuses and metrics
const (
	StepValidate = "validate"
	StepIdentify = "identify"
	StepEncode   = "encode"
	StepEmbed    = "embed"
	StepRender   = "render"
	StepConvert  = "convert"
	StepNotify   = "notify"
	StepLog      = "log"
	StepArchive  = "archive"
)

// ValidationError rejects a request before it is identified. Fields maps the
// form field name to a message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// DegradedRenderError is a best-effort step (encode, embed, convert) that
// failed; the workflow continued with a reduced artifact
type DegradedRenderError struct {
	Step string
	Err  error
}

func (e *DegradedRenderError) Error() string {
	return fmt.Sprintf("%s degraded: %v", e.Step, e.Err)
}

func (e *DegradedRenderError) Unwrap() error { return e.Err }

// FatalRenderError means field substitution failed and no artifact exists
type FatalRenderError struct {
	Err error
}

func (e *FatalRenderError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Err)
}

func (e *FatalRenderError) Unwrap() error { return e.Err }

// DeliveryError means the recipient was not notified
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// PersistenceError means the ledger row was not written. Earlier steps are
// not rolled back.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger write failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// failureStatus builds the status tag for a failed step
func failureStatus(step string, err error) string {
	return fmt.Sprintf("failed: %s: %v", step, err)
}
