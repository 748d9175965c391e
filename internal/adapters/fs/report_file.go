// Package fs implements ports on top of the local file system.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bft-labs/bankswap/internal/domain"
)

const reportFileName = "status.json"

// ReportFileRepository keeps the report of the most recent reset in
// <dir>/status.json. Only the last report is stored; the boot counter is
// what links one reset to the next.
type ReportFileRepository struct {
	dir string
}

// NewReportFileRepository returns a repository rooted at dir. The directory
// is created on the first Save.
func NewReportFileRepository(dir string) *ReportFileRepository {
	return &ReportFileRepository{dir: dir}
}

// Load returns the last saved report, or the zero report (Boots 0) when the
// device has never been reset.
func (r *ReportFileRepository) Load(ctx context.Context) (domain.Report, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Report{}, nil
		}
		return domain.Report{}, err
	}

	var report domain.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.Report{}, fmt.Errorf("%s: %w", r.Path(), err)
	}
	return report, nil
}

// Record numbers report as the reset following the stored one and saves it.
// An unreadable status file restarts the count at 1 instead of blocking the
// reset; the read error is returned alongside the saved report.
func (r *ReportFileRepository) Record(ctx context.Context, report domain.Report) (domain.Report, error) {
	prev, loadErr := r.Load(ctx)
	report.Boots = prev.Boots + 1
	if err := r.Save(ctx, report); err != nil {
		return report, err
	}
	if loadErr != nil {
		return report, fmt.Errorf("%w: %v", domain.ErrReportReset, loadErr)
	}
	return report, nil
}

// Save writes report to a temp file and renames it over status.json, so a
// reader sees either the previous report or this one.
func (r *ReportFileRepository) Save(ctx context.Context, report domain.Report) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the report file.
func (r *ReportFileRepository) Path() string {
	return filepath.Join(r.dir, reportFileName)
}
