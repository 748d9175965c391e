package ports

import (
	"context"

	"github.com/bft-labs/bankswap/internal/domain"
)

// ReportRepository persists boot reports across simulator runs.
// Implementations persist reports to disk (or other storage) atomically.
type ReportRepository interface {
	// Load retrieves the last saved report.
	// Returns an empty report and nil error if none exists.
	// Returns an error only for actual read failures.
	Load(ctx context.Context) (domain.Report, error)

	// Save persists the report atomically.
	Save(ctx context.Context, report domain.Report) error

	// Record sets report.Boots to one more than the stored report's and
	// saves it. If the stored report is unreadable the count restarts at 1,
	// the report is still saved and the error wraps domain.ErrReportReset.
	Record(ctx context.Context, report domain.Report) (domain.Report, error)
}
