package dataset

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"reading-fluency-go/internal/actionable"
	"reading-fluency-go/internal/logger"
	"reading-fluency-go/internal/report"
	"reading-fluency-go/internal/types"
)

const (
	ReportSheet = "Achievement"
	CohortSheet = "Cohort"
)

var reportHeader = []any{
	"user_id", "cohort_id", "test_type", "domain", "student_accuracy", "absolute_threshold",
	"meets_absolute", "class_mean", "class_std_dev", "z_score", "meets_statistical", "overall_achieved",
}

// ExportReports writes reports to an xlsx file at path.
func ExportReports(path string, reports []report.Report) error {
	f, err := buildWorkbook(reports)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	logger.New().WithComponent("dataset.export").
		WithField("path", path).
		WithField("reports", len(reports)).
		Info("achievement workbook written")
	return nil
}

// WriteReports streams the xlsx workbook to w.
func WriteReports(w io.Writer, reports []report.Report) error {
	f, err := buildWorkbook(reports)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

// buildWorkbook lays out one row per student and domain on the report sheet,
// plus the shared cohort statistics of the first report.
func buildWorkbook(reports []report.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "rename sheet")
	}
	if err := f.SetSheetRow(ReportSheet, "A1", &reportHeader); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write header")
	}

	row := 2
	for _, r := range reports {
		for _, t := range types.AllTestTypes() {
			v := r.Achievement.Domains[t]
			values := []any{
				r.UserID, r.CohortID, string(t), actionable.Label(t), v.StudentAccuracy, v.AbsoluteThreshold,
				v.MeetsAbsolute, optional(v.ClassMean), optional(v.ClassStdDev), optional(v.ZScore),
				statistical(v.MeetsStatistical), v.OverallAchieved,
			}
			if err := setRow(f, ReportSheet, row, values); err != nil {
				f.Close()
				return nil, err
			}
			row++
		}
	}

	if _, err := f.NewSheet(CohortSheet); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "add cohort sheet")
	}
	if err := setRow(f, CohortSheet, 1, []any{"test_type", "mean", "std_dev", "count"}); err != nil {
		f.Close()
		return nil, err
	}
	if len(reports) > 0 {
		row = 2
		for _, t := range types.AllTestTypes() {
			values := []any{string(t), "", "", 0}
			if st := reports[0].Cohort[t]; st != nil {
				values = []any{string(t), st.Mean, st.StdDev, st.Count}
			}
			if err := setRow(f, CohortSheet, row, values); err != nil {
				f.Close()
				return nil, err
			}
			row++
		}
	}
	return f, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "cell name")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "write %s row %d", sheet, row)
	}
	return nil
}

// optional leaves the cell empty for a null value.
func optional(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func statistical(v types.StatisticalVerdict) any {
	switch v {
	case types.StatisticalPass:
		return true
	case types.StatisticalFail:
		return false
	default:
		return ""
	}
}
