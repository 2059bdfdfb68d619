package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/atlas-civic/budget-tracker/internal/repository"
)

// Service is a tiny façade over the aggregate repository that produces XLSX
// bytes for exports.
type Service struct {
	aggregates repository.AggregateRepository
	logger     *slog.Logger
}

func NewService(aggregates repository.AggregateRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{aggregates: aggregates, logger: logger}
}

// ExportEntriesXLSX returns an XLSX workbook (as bytes) holding every budget
// entry accumulated for the uid, in aggregate order.
func (s *Service) ExportEntriesXLSX(ctx context.Context, uid string) ([]byte, error) {
	start := time.Now()

	agg, err := s.aggregates.Get(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Budget Entries"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Fiscal Year",
		"Department",
		"Category",
		"Subcategory",
		"Amount (USD)",
		"Fund Source",
		"Geographic Area",
		"Fiscal Period",
		"Purpose",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, e := range agg.Entries {
		values := []any{
			e.Year,
			e.Department,
			e.Category,
			e.Subcategory,
			e.AmountUSD,
			e.FundSource,
			e.GeographicArea,
			e.FiscalPeriod,
			e.Purpose,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"uid", uid,
		"rows", len(agg.Entries),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
