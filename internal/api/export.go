package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

var exportHeader = []string{
	"ID", "Region", "Subregion", "Start", "End", "Duration (h)", "Type", "Throttle",
	"Reason", "Category", "Source", "Verified", "Operators", "Source URL",
}

func (s *Server) exportShutdowns(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	evs, err := s.svc.All(r.Context(), f, parseSort(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := BuildWorkbook(evs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := fmt.Sprintf("shutdowns-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// BuildWorkbook renders events as a single-sheet workbook, one row per event.
func BuildWorkbook(evs []model.ShutdownEvent) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "shutdowns"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for i, h := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, e := range evs {
		row := i + 2
		values := []any{
			e.ID, e.Region, e.Subregion, e.StartTime.Format(time.RFC3339), "", "", string(e.EventType), "",
			e.Reason, string(e.ReasonCategory), string(e.SourceType), e.Verified, operators(e), e.SourceURL,
		}
		if e.EndTime != nil {
			values[4] = e.EndTime.Format(time.RFC3339)
		}
		if e.DurationHours != nil {
			values[5] = *e.DurationHours
		}
		if e.ThrottleTransition != nil {
			values[7] = e.ThrottleTransition.From + " -> " + e.ThrottleTransition.To
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func operators(e model.ShutdownEvent) string {
	names := make([]string, 0, len(e.OperatorImpacts))
	for _, op := range e.OperatorImpacts {
		names = append(names, op.OperatorName)
	}
	return strings.Join(names, ", ")
}
