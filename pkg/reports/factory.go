package reports

import (
	"fmt"
)

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, s ReportStore) (Generator, error) {
	switch reportType {
	case ReportTypeValidations:
		return NewValidationReport(s), nil
	case ReportTypeEvents:
		return NewEventReport(s), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}

// ParseFormat accepts "csv" or "json"; empty means csv.
func ParseFormat(s string) (ReportFormat, error) {
	switch ReportFormat(s) {
	case "", ReportFormatCSV:
		return ReportFormatCSV, nil
	case ReportFormatJSON:
		return ReportFormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format: %s", s)
}
