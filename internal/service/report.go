package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/CZERTAINLY/Drydock/internal/model"
)

func reporters(_ context.Context, cfg model.Service) ([]model.Reporter, error) {
	if cfg.Dir == "" && cfg.Webhook == "" {
		return []model.Reporter{NewWriteReporter(os.Stdout)}, nil
	}
	var reporters []model.Reporter
	if cfg.Dir != "" {
		r, err := NewOSRootReporter(cfg.Dir)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}
	if cfg.Webhook != "" {
		r, err := NewWebhookReporter(cfg.Webhook)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

// WriteReporter writes every report as a single line of JSON.
type WriteReporter struct {
	mx *sync.Mutex
	w  io.Writer
}

func NewWriteReporter(w io.Writer) WriteReporter {
	return WriteReporter{mx: &sync.Mutex{}, w: w}
}

func (r WriteReporter) Report(_ context.Context, report model.Report) error {
	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	r.mx.Lock()
	defer r.mx.Unlock()
	_, err = r.w.Write(b)
	return err
}

// OSRootReporter stores each report as a file in a directory.
type OSRootReporter struct {
	mx   sync.Mutex
	root *os.Root
}

func NewOSRootReporter(path string) (*OSRootReporter, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &OSRootReporter{root: root}, nil
}

func (r *OSRootReporter) Report(ctx context.Context, report model.Report) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.root == nil {
		return errors.New("root already closed")
	}

	id := report.ID
	if id == "" {
		id = "rejected"
	}
	path := "drydock-" + report.Job + "-" + id + ".json"
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	f, err := r.root.Create(path)
	if err != nil {
		return fmt.Errorf("creating execution report: %w", err)
	}
	_, err = f.Write(b)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("saving execution report: %w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing execution report: %w", err)
	}
	slog.InfoContext(ctx, "report saved", "path", path)
	return nil
}

func (r *OSRootReporter) Close() error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.root == nil {
		return errors.New("reporter already closed")
	}
	err := r.root.Close()
	r.root = nil
	return err
}
