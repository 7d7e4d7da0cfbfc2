// Package export renders reservations as an xlsx grid: one row per
// resource, one column per date.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"retreat/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Reservations"
	// MaxDays caps the number of date columns in one export.
	MaxDays = 366
)

var ErrInvalidRange = errors.New("invalid export date range")

type Source interface {
	GetDailyReservations(ctx context.Context, start, end time.Time) (map[string][]*models.Reservation, error)
	ListResources(ctx context.Context, kind string, onlyAvailable bool) ([]models.Resource, error)
}

type Exporter struct {
	source Source
	dir    string
	logger *zerolog.Logger
}

// NewExporter returns an exporter; when dir is set every export is also
// archived there.
func NewExporter(source Source, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, dir: dir, logger: logger}
}

// FileName is the download name for a range.
func FileName(start, end time.Time) string {
	return fmt.Sprintf("reservations_%s_to_%s.xlsx", start.Format(models.DateLayout), end.Format(models.DateLayout))
}

// Write builds the workbook for [start, end] and writes it to w.
func (e *Exporter) Write(ctx context.Context, w io.Writer, start, end time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", ErrInvalidRange)
	}
	if days := int(end.Sub(start).Hours()/24) + 1; days > MaxDays {
		return fmt.Errorf("%w: %d days, max %d", ErrInvalidRange, days, MaxDays)
	}

	daily, err := e.source.GetDailyReservations(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}
	resources, err := e.source.ListResources(ctx, "", false)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	f, err := BuildWorkbook(start, end, daily, resources)
	if err != nil {
		return err
	}
	defer f.Close()

	if e.dir != "" {
		if err := e.archive(f, start, end); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to archive export")
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (e *Exporter) archive(f *excelize.File, start, end time.Time) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(e.dir, FileName(start, end))
	if err := f.SaveAs(path); err != nil {
		return err
	}
	e.logger.Info().Str("file_path", path).Msg("Excel export archived")
	return nil
}

type styles struct {
	title, dateHeader, resource, free, pending, confirmed int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	cell := func(color string) *excelize.Style {
		return &excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true},
		}
	}
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&s.title, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 14},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&s.dateHeader, &excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}},
		{&s.resource, &excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
			Font: &excelize.Font{Bold: true},
		}},
		{&s.free, cell("#FFFFFF")},
		{&s.pending, cell("#FFEB9C")},
		{&s.confirmed, cell("#C6EFCE")},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return s, fmt.Errorf("create style: %w", err)
		}
		*d.dst = id
	}
	return s, nil
}

// BuildWorkbook lays out the grid. Cancelled reservations are skipped.
func BuildWorkbook(start, end time.Time, daily map[string][]*models.Reservation, resources []models.Resource) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	st, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s",
		start.Format("02.01.2006"), end.Format("02.01.2006")))
	_ = f.SetCellStyle(sheetName, "A1", "A1", st.title)

	var dates []string
	col := 2
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, d.Format("02.01"))
		dates = append(dates, d.Format(models.DateLayout))
		col++
	}
	if len(dates) > 0 {
		first, _ := excelize.CoordinatesToCellName(2, 2)
		last, _ := excelize.CoordinatesToCellName(len(dates)+1, 2)
		_ = f.SetCellStyle(sheetName, first, last, st.dateHeader)

		lastCol, _ := excelize.ColumnNumberToName(len(dates) + 1)
		_ = f.MergeCell(sheetName, "A1", lastCol+"1")
		_ = f.SetColWidth(sheetName, "B", lastCol, 20)
	}
	_ = f.SetColWidth(sheetName, "A", "A", 28)

	for i, res := range resources {
		row := i + 3
		nameCell, _ := excelize.CoordinatesToCellName(1, row)
		label := fmt.Sprintf("%s (%s)", res.Name, res.Kind)
		if !res.IsAvailable {
			label += " [unavailable]"
		}
		_ = f.SetCellValue(sheetName, nameCell, label)
		_ = f.SetCellStyle(sheetName, nameCell, nameCell, st.resource)

		for j, dateKey := range dates {
			cell, _ := excelize.CoordinatesToCellName(j+2, row)
			text, style := cellContent(res.ID, daily[dateKey], st)
			_ = f.SetCellValue(sheetName, cell, text)
			_ = f.SetCellStyle(sheetName, cell, cell, style)
		}
	}

	return f, nil
}

func cellContent(resourceID int64, reservations []*models.Reservation, st styles) (string, int) {
	var (
		b          strings.Builder
		hasPending bool
		count      int
	)
	for _, r := range reservations {
		if r.ResourceID != resourceID || !r.Active() {
			continue
		}
		count++
		icon := "✅"
		if r.Status == models.StatusPending {
			icon = "⏳"
			hasPending = true
		}
		fmt.Fprintf(&b, "%s-%s %s %s\n", r.StartTime, r.EndTime, icon, r.BookedBy)
	}

	switch {
	case count == 0:
		return "Free", st.free
	case hasPending:
		return strings.TrimRight(b.String(), "\n"), st.pending
	default:
		return strings.TrimRight(b.String(), "\n"), st.confirmed
	}
}
