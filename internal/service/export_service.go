package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/remindly-app/remindly-api/internal/models"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
	"github.com/remindly-app/remindly-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportResult is a rendered schedule ready to stream to the client.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders an actor's visible schedule as a downloadable file.
// Exports honour the same visibility rules as listing: students only export
// what they can see.
type ExportService struct {
	reminders *ReminderService
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Renderers may be nil, in
// which case the default CSV and PDF exporters are used.
func NewExportService(reminders *ReminderService, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{reminders: reminders, csv: csv, pdf: pdf, logger: logger}
}

// Generate renders the schedule visible to the actor in the given format.
func (s *ExportService) Generate(ctx context.Context, actor Actor, format ExportFormat, filter models.ReminderFilter) (*ExportResult, error) {
	reminders, err := s.reminders.List(ctx, actor, filter)
	if err != nil {
		return nil, err
	}

	dataset := buildScheduleDataset(reminders)
	title := "Schedule Export"
	if filter.Date != "" {
		title = fmt.Sprintf("Schedule Export %s", filter.Date)
	}

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("schedule exported",
		zap.String("actor", actor.ID),
		zap.String("format", string(format)),
		zap.Int("rows", len(reminders)))

	return &ExportResult{
		Filename:    buildExportFilename(format, filter.Date),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

func buildScheduleDataset(reminders []models.Reminder) export.Dataset {
	rows := make([][]string, 0, len(reminders))
	for _, r := range reminders {
		locked := "no"
		if r.IsLocked {
			locked = "yes"
		}
		rows = append(rows, []string{
			r.Title,
			r.Date,
			r.Time,
			fmt.Sprintf("%d", r.Duration()),
			string(r.Priority),
			r.Category,
			string(r.Status),
			locked,
		})
	}
	return export.Dataset{
		Columns: []string{"Title", "Date", "Time", "Duration (min)", "Priority", "Category", "Status", "Locked"},
		Rows:    rows,
	}
}

func buildExportFilename(format ExportFormat, date string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	parts := []string{"schedule"}
	if date != "" {
		parts = append(parts, date)
	}
	parts = append(parts, timestamp)
	return fmt.Sprintf("%s.%s", strings.Join(parts, "_"), format)
}
