// Package export writes the user's recommendation decisions to spreadsheets.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MimeLyc/jobhunt-companion/internal/backend"
	"github.com/MimeLyc/jobhunt-companion/internal/feedback"
	"github.com/MimeLyc/jobhunt-companion/internal/persistence"
	"github.com/MimeLyc/jobhunt-companion/pkg/log"
)

const (
	sheetRecommendations = "Recommendations"
	sheetSummary         = "Summary"
	pendingLabel         = "pending"
)

var recommendationHeaders = []string{
	"Item ID",
	"Type",
	"Item",
	"Decision",
	"Modified Text",
	"Notes",
	"Decided At",
}

// RecommendationsXLSX returns a workbook listing every recommendation item next
// to the decision recorded for it. Items without a decision are marked pending.
func RecommendationsXLSX(recs *backend.Recommendations, decisions []persistence.Decision) ([]byte, error) {
	start := time.Now()
	byItem := make(map[string]persistence.Decision, len(decisions))
	for _, d := range decisions {
		byItem[d.ItemID] = d
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetRecommendations); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range recommendationHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetRecommendations, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheetRecommendations, "A1", "G1", style)
	}

	counts := map[string]int{}
	targets := feedback.Targets(recs)
	row := 2
	for _, t := range targets {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetRecommendations, cell, v)
		}
		write(1, t.ID)
		write(2, t.Type)
		write(3, t.Label)

		d, ok := byItem[t.ID]
		if !ok {
			write(4, pendingLabel)
			counts[pendingLabel]++
			row++
			continue
		}
		write(4, d.Decision)
		write(5, truncate(d.ModifiedText, 500))
		write(6, truncate(d.Notes, 200))
		if !d.DecidedAt.IsZero() {
			write(7, d.DecidedAt.UTC().Format(time.RFC3339))
		}
		counts[d.Decision]++
		row++
	}

	_ = f.SetColWidth(sheetRecommendations, "A", "A", 36)
	_ = f.SetColWidth(sheetRecommendations, "B", "B", 26)
	_ = f.SetColWidth(sheetRecommendations, "C", "C", 40)
	_ = f.SetColWidth(sheetRecommendations, "D", "D", 16)
	_ = f.SetColWidth(sheetRecommendations, "E", "F", 48)
	_ = f.SetColWidth(sheetRecommendations, "G", "G", 22)

	if err := writeSummary(f, len(targets), counts); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	log.Debug("Exported %d recommendation items in %v", len(targets), time.Since(start))
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, total int, counts map[string]int) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][]any{
		{"Total items", total},
		{"Accepted", counts[string(feedback.Accept)]},
		{"Rejected", counts[string(feedback.Reject)]},
		{"Further modify", counts[string(feedback.FurtherModify)]},
		{"Pending", counts[pendingLabel]},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetSummary, cell, &r); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	_ = f.SetColWidth(sheetSummary, "A", "A", 18)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
