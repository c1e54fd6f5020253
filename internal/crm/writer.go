package crm

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/carematch/community-recommender/internal/pipeline"
)

const (
	consultationsSheet   = "Client Consultations"
	recommendationsSheet = "Recommendations Detail"
)

var consultationHeaders = []string{
	"Consultation ID", "Date", "Client Name", "Care Level", "Budget",
	"Timeline", "Location", "Top Recommendation", "Recommendations", "Est. Cost (USD)",
}

var recommendationHeaders = []string{
	"Consultation ID", "Final Rank", "Community ID", "Community Name",
	"Combined Score", "Monthly Fee", "Distance (mi)", "Waitlist", "Why",
}

// Writer hands a finished consultation to the CRM.
type Writer interface {
	Push(ctx context.Context, result *pipeline.ConsultationResult) error
}

// WorkbookWriter appends consultations to a local xlsx workbook with the
// same two-sheet layout consultants already use: one summary row per
// consultation plus one detail row per recommendation.
type WorkbookWriter struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

func NewWorkbookWriter(path string, logger *zap.Logger) *WorkbookWriter {
	return &WorkbookWriter{path: path, logger: logger}
}

func (w *WorkbookWriter) Push(ctx context.Context, result *pipeline.ConsultationResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	top := ""
	if len(result.Recommendations) > 0 {
		top = result.Recommendations[0].CommunityName
		if top == "" {
			top = fmt.Sprintf("Community %d", result.Recommendations[0].CommunityID)
		}
	}

	info := result.ClientInfo
	summary := []interface{}{
		result.ConsultationID,
		time.Now().UTC().Format(time.RFC3339),
		info.ClientName,
		info.CareLevel,
		info.BudgetMonthly,
		info.Timeline,
		info.LocationPreference,
		top,
		len(result.Recommendations),
		result.PerformanceMetrics.Costs.TotalCost,
	}
	if err := appendRow(f, consultationsSheet, summary); err != nil {
		return err
	}

	for _, rec := range result.Recommendations {
		var distance interface{}
		if rec.KeyMetrics.DistanceMiles != nil {
			distance = *rec.KeyMetrics.DistanceMiles
		}
		row := []interface{}{
			result.ConsultationID,
			rec.FinalRank,
			rec.CommunityID,
			rec.CommunityName,
			rec.CombinedRankScore,
			rec.KeyMetrics.MonthlyFee,
			distance,
			rec.KeyMetrics.EstWaitlist,
			rec.Explanations["holistic"],
		}
		if err := appendRow(f, recommendationsSheet, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("save crm workbook: %w", err)
	}

	w.logger.Info("consultation pushed to crm workbook",
		zap.String("consultation_id", result.ConsultationID),
		zap.String("file", w.path),
		zap.Int("recommendations", len(result.Recommendations)),
	)

	return nil
}

func (w *WorkbookWriter) open() (*excelize.File, error) {
	if _, err := os.Stat(w.path); err == nil {
		f, err := excelize.OpenFile(w.path)
		if err != nil {
			return nil, fmt.Errorf("open crm workbook: %w", err)
		}
		return f, nil
	}

	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), consultationsSheet)
	if _, err := f.NewSheet(recommendationsSheet); err != nil {
		return nil, err
	}
	if err := setRow(f, consultationsSheet, 1, toRow(consultationHeaders)); err != nil {
		return nil, err
	}
	if err := setRow(f, recommendationsSheet, 1, toRow(recommendationHeaders)); err != nil {
		return nil, err
	}
	return f, nil
}

func appendRow(f *excelize.File, sheet string, row []interface{}) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read crm sheet %q: %w", sheet, err)
	}
	return setRow(f, sheet, len(rows)+1, row)
}

func setRow(f *excelize.File, sheet string, rowIndex int, row []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIndex)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write crm row: %w", err)
	}
	return nil
}

func toRow(headers []string) []interface{} {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}
