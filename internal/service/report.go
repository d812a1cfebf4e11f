package service

import (
	"context"
	"time"

	"github.com/Strob0t/CareForge/internal/dispatch"
	"github.com/Strob0t/CareForge/internal/domain/report"
	"github.com/Strob0t/CareForge/internal/domain/result"
)

// GenerateUtilizationReport summarizes prescription activity between From
// (inclusive) and To (exclusive).
type GenerateUtilizationReport struct {
	dispatch.Returns[report.Utilization]
	From time.Time
	To   time.Time
}

func (GenerateUtilizationReport) RequiredRoles() []string { return staff }

// CodeReportPeriodInvalid rejects an empty or inverted reporting period.
const CodeReportPeriodInvalid = "REPORT_PERIOD_INVALID"

// ReportService produces reports. No report has been designed yet.
type ReportService struct{}

// Register binds the reporting handlers and validators.
func (s *ReportService) Register(b *dispatch.Builder) {
	dispatch.Validate(b, dispatch.Check(CodeReportPeriodInvalid, "from must be before to",
		func(r GenerateUtilizationReport) bool { return !r.From.IsZero() && r.From.Before(r.To) }))
	dispatch.Register(b, s.utilization)
}

func (s *ReportService) utilization(context.Context, GenerateUtilizationReport) result.Result[report.Utilization] {
	return result.NotImplemented[report.Utilization]("utilization report")
}
