package certificates

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"certificate-portal/certificate-portal-backend/internal/ledger"
	"certificate-portal/certificate-portal-backend/pkg/workflows"
)

// Ledger persists one row per identified request
type Ledger interface {
	Append(ctx context.Context, row ledger.Row) error
}

// FormatConverter turns the rendered DOCX into a portable document
type FormatConverter interface {
	Convert(ctx context.Context, srcPath string) (string, error)
}

// ScannableCodeEncoder writes an image encoding content into dir
type ScannableCodeEncoder interface {
	Encode(ctx context.Context, content, dir string) (string, error)
}

// DocumentRenderer embeds the code image and substitutes record fields
type DocumentRenderer interface {
	Template() []byte
	EmbedImage(template []byte, imagePath string) ([]byte, error)
	Render(template []byte, fields map[string]string, outPath string) error
}

// Notifier delivers the artifact to the record's email address
type Notifier interface {
	Notify(ctx context.Context, rec *Record, artifactPath string) error
}

// Archive keeps a copy of delivered artifacts
type Archive interface {
	Put(ctx context.Context, name, filePath string) (string, error)
}

// Alerter tells operators about workflows that ended with a failed step
type Alerter interface {
	Alert(ctx context.Context, out *WorkflowOutcome) error
}

// Metrics observes workflow results
type Metrics interface {
	ObserveStep(step, status string)
	ObserveRequest(result string, took time.Duration)
}

// Request results reported to Metrics
const (
	ResultRejected = "rejected"
	ResultSent     = "sent"
	ResultFailed   = "failed"
)

// Timeouts bound the remote steps. Zero disables the bound.
type Timeouts struct {
	Encode  time.Duration
	Convert time.Duration
	Notify  time.Duration
	Ledger  time.Duration
	Archive time.Duration
}

// Config configures the workflow
type Config struct {
	// ScratchDir is the parent of per-request working directories; empty
	// uses the OS temp dir
	ScratchDir string
	Timeouts   Timeouts
}

// Dependencies are the components driven by the workflow. Archive, Alerter
// and Metrics are optional.
type Dependencies struct {
	Validator *RequestValidator
	IDs       IDSource
	Encoder   ScannableCodeEncoder
	Renderer  DocumentRenderer
	Converter FormatConverter
	Notifier  Notifier
	Ledger    Ledger
	Archive   Archive
	Alerter   Alerter
	Metrics   Metrics
}

// Service issues completion certificates
type Service interface {
	// Issue runs one request to completion. The outcome is always returned;
	// the error joins every step failure and matches *ValidationError when
	// the request was rejected.
	Issue(ctx context.Context, req Request) (*WorkflowOutcome, error)
}

type certificateService struct {
	config  Config
	deps    Dependencies
	machine *workflows.StateMachine
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates the certificate workflow
func NewService(config Config, deps Dependencies, logger *zap.Logger) (Service, error) {
	switch {
	case deps.Encoder == nil:
		return nil, errors.New("encoder is required")
	case deps.Renderer == nil:
		return nil, errors.New("renderer is required")
	case deps.Converter == nil:
		return nil, errors.New("converter is required")
	case deps.Notifier == nil:
		return nil, errors.New("notifier is required")
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	}
	if deps.Validator == nil {
		deps.Validator = NewRequestValidator()
	}
	if deps.IDs == nil {
		deps.IDs = DefaultIDSource
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &certificateService{
		config:  config,
		deps:    deps,
		machine: workflows.NewStateMachine(),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// run carries the per-request state through the steps
type run struct {
	outcome *WorkflowOutcome
	tracker *workflows.Tracker
	logger  *zap.Logger
}

func (s *certificateService) Issue(ctx context.Context, req Request) (*WorkflowOutcome, error) {
	started := s.now()
	r := &run{
		outcome: &WorkflowOutcome{RequestID: uuid.NewString()},
		tracker: s.machine.NewTracker(),
		logger:  s.logger,
	}
	defer func() {
		r.outcome.State = string(r.tracker.Current())
		s.observe(r.outcome, s.now().Sub(started))
	}()

	t := s.now()
	if err := s.deps.Validator.Validate(&req); err != nil {
		r.outcome.add(StepValidate, StepFailed, err, s.now().Sub(t))
		s.advance(r, workflows.StateDone)
		s.logger.Info("Certificate request rejected", zap.Error(err))
		return r.outcome, r.outcome.Err()
	}
	r.outcome.add(StepValidate, StepOK, nil, s.now().Sub(t))

	rec := NewRecord(req, GenerateCertificateID(s.deps.IDs))
	r.outcome.Record = rec
	r.outcome.add(StepIdentify, StepOK, nil, 0)
	s.advance(r, workflows.StateIdentified)

	r.logger = s.logger.With(
		zap.String("request_id", r.outcome.RequestID),
		zap.String("certificate_id", rec.ID),
	)
	r.logger.Info("Issuing certificate", zap.String("domain", rec.Domain))

	s.advance(r, workflows.StateRendering)
	docxPath, fatal := s.render(ctx, r, rec)
	if fatal != nil {
		rec.Status = failureStatus(StepRender, fatal.Err)
		r.outcome.add(StepConvert, StepSkipped, nil, 0)
		r.outcome.add(StepNotify, StepSkipped, nil, 0)
	} else {
		s.advance(r, workflows.StateConverting)
		artifact := s.convert(ctx, r, docxPath)
		r.outcome.ArtifactPath = artifact
		r.outcome.ArtifactName = rec.ArtifactName(filepath.Ext(artifact))

		s.advance(r, workflows.StateNotifying)
		s.notify(ctx, r, rec, artifact)
	}

	s.advance(r, workflows.StateLogged)
	s.log(ctx, r, rec)

	s.advance(r, workflows.StateDone)
	s.archive(ctx, r, rec)
	s.alert(ctx, r)

	r.logger.Info("Certificate workflow finished",
		zap.String("status", rec.Status),
		zap.Duration("took", s.now().Sub(started)),
	)
	return r.outcome, r.outcome.Err()
}

// render encodes and embeds the code image (best-effort) and substitutes the
// record fields. Only a substitution failure is fatal.
func (s *certificateService) render(ctx context.Context, r *run, rec *Record) (string, *FatalRenderError) {
	scratch, err := os.MkdirTemp(s.config.ScratchDir, "certificate-"+rec.ID+"-")
	if err != nil {
		fatal := &FatalRenderError{Err: fmt.Errorf("failed to create scratch directory: %w", err)}
		r.outcome.add(StepEncode, StepSkipped, nil, 0)
		r.outcome.add(StepEmbed, StepSkipped, nil, 0)
		r.outcome.add(StepRender, StepFailed, fatal, 0)
		return "", fatal
	}

	template := s.deps.Renderer.Template()

	t := s.now()
	ectx, cancel := withTimeout(ctx, s.config.Timeouts.Encode)
	codePath, err := s.deps.Encoder.Encode(ectx, rec.Summary(), scratch)
	cancel()
	if err != nil {
		r.outcome.add(StepEncode, StepDegraded, &DegradedRenderError{Step: StepEncode, Err: err}, s.now().Sub(t))
		r.outcome.add(StepEmbed, StepSkipped, nil, 0)
		r.logger.Warn("Code encoding failed, rendering without image", zap.Error(err))
	} else {
		r.outcome.add(StepEncode, StepOK, nil, s.now().Sub(t))

		t = s.now()
		embedded, err := s.deps.Renderer.EmbedImage(template, codePath)
		if err != nil {
			r.outcome.add(StepEmbed, StepDegraded, &DegradedRenderError{Step: StepEmbed, Err: err}, s.now().Sub(t))
			r.logger.Warn("Image embedding failed, rendering unmodified template", zap.Error(err))
		} else {
			template = embedded
			r.outcome.add(StepEmbed, StepOK, nil, s.now().Sub(t))
		}
	}

	t = s.now()
	docxPath := filepath.Join(scratch, "certificate.docx")
	if err := s.deps.Renderer.Render(template, rec.Fields(), docxPath); err != nil {
		fatal := &FatalRenderError{Err: err}
		r.outcome.add(StepRender, StepFailed, fatal, s.now().Sub(t))
		r.logger.Error("Failed to render certificate", zap.Error(err))
		return "", fatal
	}
	r.outcome.add(StepRender, StepOK, nil, s.now().Sub(t))
	return docxPath, nil
}

// convert returns the PDF path, or docxPath when conversion fails
func (s *certificateService) convert(ctx context.Context, r *run, docxPath string) string {
	t := s.now()
	cctx, cancel := withTimeout(ctx, s.config.Timeouts.Convert)
	defer cancel()

	pdfPath, err := s.deps.Converter.Convert(cctx, docxPath)
	if err != nil {
		r.outcome.add(StepConvert, StepDegraded, &DegradedRenderError{Step: StepConvert, Err: err}, s.now().Sub(t))
		r.logger.Warn("Conversion failed, delivering DOCX", zap.Error(err))
		return docxPath
	}
	r.outcome.add(StepConvert, StepOK, nil, s.now().Sub(t))
	return pdfPath
}

func (s *certificateService) notify(ctx context.Context, r *run, rec *Record, artifact string) {
	t := s.now()
	nctx, cancel := withTimeout(ctx, s.config.Timeouts.Notify)
	defer cancel()

	if err := s.deps.Notifier.Notify(nctx, rec, artifact); err != nil {
		rec.Status = failureStatus("delivery", err)
		r.outcome.add(StepNotify, StepFailed, &DeliveryError{Err: err}, s.now().Sub(t))
		r.logger.Error("Failed to deliver certificate", zap.Error(err))
		return
	}
	rec.Status = StatusSent
	r.outcome.add(StepNotify, StepOK, nil, s.now().Sub(t))
}

// log appends the ledger row exactly once; it is never retried
func (s *certificateService) log(ctx context.Context, r *run, rec *Record) {
	t := s.now()
	lctx, cancel := withTimeout(ctx, s.config.Timeouts.Ledger)
	defer cancel()

	if err := s.deps.Ledger.Append(lctx, rec.LedgerRow()); err != nil {
		r.outcome.add(StepLog, StepFailed, &PersistenceError{Err: err}, s.now().Sub(t))
		r.logger.Error("Failed to append ledger row", zap.Error(err))
		return
	}
	r.outcome.add(StepLog, StepOK, nil, s.now().Sub(t))
}

func (s *certificateService) archive(ctx context.Context, r *run, rec *Record) {
	if s.deps.Archive == nil || !r.outcome.HasArtifact() {
		return
	}

	t := s.now()
	actx, cancel := withTimeout(ctx, s.config.Timeouts.Archive)
	defer cancel()

	name := rec.ID + filepath.Ext(r.outcome.ArtifactPath)
	key, err := s.deps.Archive.Put(actx, name, r.outcome.ArtifactPath)
	if err != nil {
		r.outcome.add(StepArchive, StepDegraded, fmt.Errorf("failed to archive certificate: %w", err), s.now().Sub(t))
		r.logger.Warn("Failed to archive certificate", zap.Error(err))
		return
	}
	r.outcome.ArchiveKey = key
	r.outcome.add(StepArchive, StepOK, nil, s.now().Sub(t))
}

func (s *certificateService) alert(ctx context.Context, r *run) {
	if s.deps.Alerter == nil {
		return
	}
	failed := false
	for _, step := range r.outcome.Steps {
		failed = failed || step.Status == StepFailed
	}
	if !failed {
		return
	}

	r.outcome.State = string(r.tracker.Current())
	actx, cancel := withTimeout(ctx, s.config.Timeouts.Notify)
	defer cancel()
	if err := s.deps.Alerter.Alert(actx, r.outcome); err != nil {
		r.logger.Warn("Failed to raise workflow alert", zap.Error(err))
	}
}

func (s *certificateService) advance(r *run, to workflows.State) {
	if err := r.tracker.Advance(to); err != nil {
		r.logger.Error("Workflow transition rejected", zap.Error(err))
	}
}

func (s *certificateService) observe(out *WorkflowOutcome, took time.Duration) {
	if s.deps.Metrics == nil {
		return
	}
	for _, step := range out.Steps {
		s.deps.Metrics.ObserveStep(step.Step, string(step.Status))
	}

	result := ResultFailed
	switch {
	case out.Record == nil:
		result = ResultRejected
	case out.Delivered():
		result = ResultSent
	}
	s.deps.Metrics.ObserveRequest(result, took)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
