// Package report renders the library's quality scores as an Excel workbook.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tealeg/xlsx/v3"

	"github.com/kalambet/loratk/internal/quality"
	"github.com/kalambet/loratk/internal/storage"
)

const (
	EntriesSheet = "Entries"
	SummarySheet = "Summary"
)

var headers = []string{
	"Added", "Title", "Source", "Category", "Words", "Score", "Grade", "Issues",
}

// Generate builds an in-memory workbook with one row per entry and a grade
// summary sheet. Scores are recomputed from content, not read from the store.
func Generate(entries []storage.Entry) (*bytes.Buffer, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(EntriesSheet)
	if err != nil {
		return nil, err
	}

	headerRow := sheet.AddRow()
	for _, h := range headers {
		cell := headerRow.AddCell()
		cell.Value = h
	}

	contents := make([]string, 0, len(entries))
	for _, e := range entries {
		r := quality.Score(e.Content)
		contents = append(contents, e.Content)

		row := sheet.AddRow()
		cell := row.AddCell()
		cell.SetDate(e.CreatedAt)

		cell = row.AddCell()
		cell.Value = e.Title

		cell = row.AddCell()
		cell.Value = string(e.SourceType)

		cell = row.AddCell()
		cell.Value = e.Category

		cell = row.AddCell()
		cell.SetInt(r.WordCount)

		cell = row.AddCell()
		cell.SetInt(r.Overall)

		cell = row.AddCell()
		cell.Value = string(r.Grade)

		cell = row.AddCell()
		cell.Value = strings.Join(r.Issues, "; ")
	}

	if err := addSummary(file, quality.Summarize(contents)); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := file.Write(buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf, nil
}

func addSummary(file *xlsx.File, s quality.Summary) error {
	sheet, err := file.AddSheet(SummarySheet)
	if err != nil {
		return err
	}

	addPair := func(label string, v int) {
		row := sheet.AddRow()
		cell := row.AddCell()
		cell.Value = label
		cell = row.AddCell()
		cell.SetInt(v)
	}

	addPair("Entries", s.Total)
	addPair("Average score", s.AvgScore)
	for _, g := range quality.Grades {
		addPair(string(g), s.ByGrade[g])
	}
	return nil
}
