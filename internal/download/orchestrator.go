// Package download turns a completed selection into a CSV file on disk.
package download

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/go-playground/validator/v10"

	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/observability"
	"github.com/meteoci/station-export/internal/workflow"
)

// Service is the download slice of the DataService: one call returns
// the CSV payload for one export tuple.
type Service interface {
	Download(ctx context.Context, req domain.ExportRequest) ([]byte, error)
}

// Sink persists a finished export payload under its filename.
type Sink interface {
	Save(filename string, payload []byte) error
}

// DirSink saves exports into a local directory.
type DirSink struct {
	Dir string
}

func (s DirSink) Save(filename string, payload []byte) error {
	return os.WriteFile(filepath.Join(s.Dir, filename), payload, 0o644)
}

// Orchestrator validates final selections, fetches the CSV payload in
// date blocks sized to the granularity's request limit, merges the
// blocks, names the file deterministically, and reports coarse
// progress milestones. A failed download re-enables the trigger and
// leaves the selection untouched so the user can retry.
type Orchestrator struct {
	svc       Service
	sink      Sink
	presenter workflow.Presenter
	logger    *slog.Logger
	metrics   *observability.Metrics
	validate  *validator.Validate
	running   atomic.Bool
}

// NewOrchestrator creates a download orchestrator.
func NewOrchestrator(svc Service, sink Sink, presenter workflow.Presenter, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		svc:       svc,
		sink:      sink,
		presenter: presenter,
		logger:    logger,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// Running reports whether a download is in progress; the surface uses
// it to disable the trigger control.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// Run executes one download for the given selection snapshot and
// returns the saved filename. Preconditions are re-validated locally
// before any network call — the orchestrator does not trust that a
// disabled control prevented an incomplete request.
func (o *Orchestrator) Run(ctx context.Context, snap domain.SelectionState) (string, error) {
	if !o.running.CompareAndSwap(false, true) {
		return "", domain.Validationf("a download is already in progress")
	}
	defer o.running.Store(false)

	req := domain.ExportRequestFrom(snap)
	if err := o.validateRequest(req, snap); err != nil {
		o.metrics.Downloads.WithLabelValues("rejected").Inc()
		o.presenter.Toast(err.Error(), workflow.SeverityWarning)
		return "", err
	}

	payload, err := o.fetch(ctx, req, snap)
	if err != nil {
		o.metrics.Downloads.WithLabelValues("error").Inc()
		o.presenter.Progress(0, "")
		o.presenter.Toast(fmt.Sprintf("download failed: %v", err), workflow.SeverityError)
		return "", err
	}

	filename := domain.ExportFilename(snap.Stations, snap.Start, snap.End)
	o.presenter.Progress(95, "file constructed")

	if err := o.sink.Save(filename, payload); err != nil {
		o.metrics.Downloads.WithLabelValues("error").Inc()
		o.presenter.Progress(0, "")
		o.presenter.Toast(fmt.Sprintf("save failed: %v", err), workflow.SeverityError)
		return "", fmt.Errorf("save %s: %w", filename, err)
	}

	o.metrics.Downloads.WithLabelValues("success").Inc()
	o.metrics.DownloadBytes.Add(float64(len(payload)))
	o.presenter.Progress(100, "done")
	o.presenter.Toast(fmt.Sprintf("saved %s (%d bytes)", filename, len(payload)), workflow.SeverityInfo)
	o.logger.Info("export saved", "file", filename, "bytes", len(payload),
		"stations", len(snap.Stations), "params", len(snap.Params))
	return filename, nil
}

// validateRequest rejects incomplete tuples locally, with zero network
// calls.
func (o *Orchestrator) validateRequest(req domain.ExportRequest, snap domain.SelectionState) error {
	if err := o.validate.Struct(req); err != nil {
		switch {
		case len(req.Stations) == 0:
			return domain.Validationf("select at least one station")
		case len(req.Params) == 0:
			return domain.Validationf("select at least one parameter")
		case req.StartDate == "" || req.EndDate == "":
			return domain.Validationf("select a complete date range")
		default:
			return domain.Validationf("invalid export request: %v", err)
		}
	}
	// The service rejects start >= end, so fail it locally too.
	if !snap.Start.Before(snap.End) {
		return domain.Validationf("start date must be before end date")
	}
	return nil
}

// fetch downloads the range block by block and merges the CSV
// payloads, keeping the header of the first block only. Block limits
// mirror the upstream per-request caps for each granularity.
func (o *Orchestrator) fetch(ctx context.Context, req domain.ExportRequest, snap domain.SelectionState) ([]byte, error) {
	// Validation guarantees start < end, so there is at least one block.
	blocks := domain.SplitDateRange(snap.Start, snap.End, snap.Granularity.BlockLimitDays())

	o.presenter.Progress(5, "request issued")

	var merged []byte
	for i, block := range blocks {
		blockReq := req
		blockReq.StartDate = block.Start.Format(domain.DateFormat)
		blockReq.EndDate = block.End.Format(domain.DateFormat)

		payload, err := o.svc.Download(ctx, blockReq)
		if err != nil {
			return nil, fmt.Errorf("block %s..%s: %w", blockReq.StartDate, blockReq.EndDate, err)
		}

		merged = mergeCSV(merged, payload)
		percent := 5 + (80*(i+1))/len(blocks)
		o.presenter.Progress(percent, fmt.Sprintf("block %d/%d received", i+1, len(blocks)))
	}

	o.presenter.Progress(90, "payload received")
	return merged, nil
}

// mergeCSV appends next to acc, dropping next's header row when acc
// already has one.
func mergeCSV(acc, next []byte) []byte {
	if len(acc) == 0 {
		return append(acc, next...)
	}
	if idx := bytes.IndexByte(next, '\n'); idx >= 0 {
		next = next[idx+1:]
	} else {
		// Header-only payload, nothing to append.
		return acc
	}
	if len(acc) > 0 && acc[len(acc)-1] != '\n' {
		acc = append(acc, '\n')
	}
	return append(acc, next...)
}
