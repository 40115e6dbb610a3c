package dataset

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
	"reading-fluency-go/internal/logger"
	"reading-fluency-go/internal/types"
)

type columns struct {
	id, user, cohort, testType, target, answer, accuracy, correct, errorType, audio, created int
}

// detectColumns maps header names to column indices. More specific names are
// matched first so that e.g. "student_answer" is not taken as the user column.
func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	set := func(idx *int, i int) {
		if *idx == -1 {
			*idx = i
		}
	}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "answer") || strings.Contains(l, "transcript"):
			set(&c.answer, i)
		case strings.Contains(l, "target") || strings.Contains(l, "prompt") || strings.Contains(l, "item"):
			set(&c.target, i)
		case strings.Contains(l, "error"):
			set(&c.errorType, i)
		case strings.Contains(l, "correct"):
			set(&c.correct, i)
		case strings.Contains(l, "accuracy") || strings.Contains(l, "score"):
			set(&c.accuracy, i)
		case strings.Contains(l, "audio") || strings.Contains(l, "url"):
			set(&c.audio, i)
		case strings.Contains(l, "cohort") || strings.Contains(l, "class"):
			set(&c.cohort, i)
		case strings.Contains(l, "user") || strings.Contains(l, "student"):
			set(&c.user, i)
		case strings.Contains(l, "test") || strings.Contains(l, "domain"):
			set(&c.testType, i)
		case strings.Contains(l, "created") || strings.Contains(l, "date") || strings.Contains(l, "time"):
			set(&c.created, i)
		case strings.Contains(l, "id"):
			set(&c.id, i)
		}
	}
	return c
}

// LoadAttempts reads attempt rows from the first sheet of an xlsx workbook.
// Rows without a user or with an unknown test type are skipped. Rows without
// an id get one derived from the file name and row number, so importing the
// same workbook twice yields the same ids.
// Accuracy cells are percentages; plain values strictly between 0 and 1 are
// read as fractions (see parseAccuracy).
func LoadAttempts(path string) ([]types.AttemptResult, error) {
	log := logger.New().WithComponent("dataset.loader").WithField("path", path)
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "read rows of %s", sheets[0])
	}
	if len(rows) <= 1 {
		return nil, errors.New("no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.user == -1 || cols.testType == -1 {
		return nil, errors.Errorf("missing user or test type column in header %v", rows[0])
	}
	log.WithField("columns", fmt.Sprintf("%+v", cols)).Debug("detected attempt columns")

	importedAt := time.Now().UTC()
	base := filepath.Base(path)
	var out []types.AttemptResult
	skipped := 0
	for i, r := range rows[1:] {
		cell := func(idx int) string {
			if idx >= 0 && idx < len(r) {
				return strings.TrimSpace(r[idx])
			}
			return ""
		}

		tt, ok := types.ParseTestType(cell(cols.testType))
		user := cell(cols.user)
		if !ok || user == "" {
			skipped++
			continue
		}
		a := types.AttemptResult{
			ID:            cell(cols.id),
			TestType:      tt,
			UserID:        user,
			CohortID:      cell(cols.cohort),
			TargetText:    cell(cols.target),
			StudentAnswer: cell(cols.answer),
			ErrorType:     types.ErrorKind(cell(cols.errorType)),
			AudioURL:      cell(cols.audio),
			Accuracy:      parseAccuracy(cell(cols.accuracy)),
			IsCorrect:     parseCorrect(cell(cols.correct)),
			CreatedAt:     parseTime(cell(cols.created), importedAt),
		}
		if a.ID == "" {
			a.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", base, i+2))).String()
		}
		out = append(out, a)
	}
	log.WithField("attempts", len(out)).WithField("skipped", skipped).Info("attempt sheet loaded")
	return out, nil
}

// parseAccuracy reads a percentage. "85" and "85%" both mean 85. A plain
// value strictly between 0 and 1 is a fraction ("0.85" is 85); 0 and 1 are
// taken as percentages however they are written, so "1" and "1.0" are both 1.
func parseAccuracy(s string) *float64 {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if !percent && v > 0 && v < 1 {
		v *= 100
	}
	return &v
}

func parseCorrect(s string) *bool {
	var v bool
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "correct":
		v = true
	case "0", "false", "no", "n", "incorrect":
		v = false
	default:
		return nil
	}
	return &v
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"}

func parseTime(s string, def time.Time) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return def
}
