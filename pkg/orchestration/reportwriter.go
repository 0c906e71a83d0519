package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/go-cloud-reconciler/pkg/config"
)

// ReportWriter records the outcome of a run.
type ReportWriter interface {
	Write(ctx context.Context, report *Report) error
	// Close any underlying file handles.
	Close() error
}

// StreamReportWriter encodes reports as YAML or JSON onto an io.Writer.
type StreamReportWriter struct {
	w      io.Writer
	format string
	closer io.Closer
}

// NewReportWriter writes to w in the given format (config.OutputYAML or
// config.OutputJSON). Close does not close w.
func NewReportWriter(w io.Writer, format string) (*StreamReportWriter, error) {
	switch format {
	case config.OutputYAML, config.OutputJSON:
	default:
		return nil, fmt.Errorf("unsupported report format '%s'", format)
	}
	return &StreamReportWriter{w: w, format: format}, nil
}

// NewFileReportWriter creates (or truncates) path and writes reports to it.
func NewFileReportWriter(path, format string) (*StreamReportWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file '%s': %w", path, err)
	}
	rw, err := NewReportWriter(f, format)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	rw.closer = f
	return rw, nil
}

// Write encodes report.
func (rw *StreamReportWriter) Write(_ context.Context, report *Report) error {
	switch rw.format {
	case config.OutputJSON:
		enc := json.NewEncoder(rw.w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to write json report: %w", err)
		}
	default:
		enc := yaml.NewEncoder(rw.w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to write yaml report: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to write yaml report: %w", err)
		}
	}
	return nil
}

// Close closes the file opened by NewFileReportWriter, if any.
func (rw *StreamReportWriter) Close() error {
	if rw.closer == nil {
		return nil
	}
	return rw.closer.Close()
}
