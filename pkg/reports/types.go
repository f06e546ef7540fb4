package reports

import (
	"context"
	"io"
	"time"

	"github.com/rmax-ai/transformer-puzzle/pkg/store"
)

type ReportType string

const (
	ReportTypeValidations ReportType = "validations"
	ReportTypeEvents      ReportType = "events"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

// ContentType returns the MIME type of the format.
func (f ReportFormat) ContentType() string {
	if f == ReportFormatJSON {
		return "application/json"
	}
	return "text/csv"
}

type ReportParams struct {
	Start     time.Time
	End       time.Time
	SessionID string
	Format    ReportFormat
}

// ReportStore defines the interface for data access required by reports.
type ReportStore interface {
	QueryEvents(ctx context.Context, filter store.EventFilter) ([]*store.Event, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
