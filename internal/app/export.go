package app

import (
	"encoding/csv"
	"io"
	"strconv"

	"proficiency-exam-service/internal/domain"
)

var exportHeader = []string{"Student Name", "Email", "Score", "Total", "Percentage", "Status", "Completed", "Minutes"}

// WriteResultsCSV writes one row per result for reporting.
func WriteResultsCSV(w io.Writer, results []domain.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range results {
		status := "Failed"
		if r.Passed {
			status = "Passed"
		}
		row := []string{
			r.Student.Name,
			r.Student.Email,
			strconv.Itoa(r.Score),
			strconv.Itoa(r.TotalPoints),
			strconv.Itoa(r.Percentage) + "%",
			status,
			r.CompletedAt.Format("2006-01-02"),
			strconv.Itoa((r.TimeSpent + 30) / 60),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
