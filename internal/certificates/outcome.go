package certificates

import (
	"errors"
	"time"
)

// StepStatus is the result of one workflow step
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepDegraded StepStatus = "degraded"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
)

// StepResult records how a step ended
type StepResult struct {
	Step     string        `json:"step"`
	Status   StepStatus    `json:"status"`
	Err      error         `json:"-"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// WorkflowOutcome is everything the caller learns about one request
type WorkflowOutcome struct {
	RequestID    string       `json:"request_id"`
	Record       *Record      `json:"record,omitempty"`
	Steps        []StepResult `json:"steps"`
	ArtifactPath string       `json:"-"`
	ArtifactName string       `json:"artifact_name,omitempty"`
	ArchiveKey   string       `json:"archive_key,omitempty"`
	State        string       `json:"state"`
}

func (o *WorkflowOutcome) add(step string, status StepStatus, err error, took time.Duration) {
	res := StepResult{Step: step, Status: status, Err: err, Duration: took}
	if err != nil {
		res.Message = err.Error()
	}
	o.Steps = append(o.Steps, res)
}

// Step returns the result recorded for step
func (o *WorkflowOutcome) Step(step string) (StepResult, bool) {
	for _, s := range o.Steps {
		if s.Step == step {
			return s, true
		}
	}
	return StepResult{}, false
}

// Err joins every step error so callers can match any class with errors.As
func (o *WorkflowOutcome) Err() error {
	var errs []error
	for _, s := range o.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// Delivered reports whether the recipient was notified
func (o *WorkflowOutcome) Delivered() bool {
	s, ok := o.Step(StepNotify)
	return ok && s.Status == StepOK
}

// HasArtifact reports whether a rendered document exists
func (o *WorkflowOutcome) HasArtifact() bool {
	return o.ArtifactPath != ""
}
