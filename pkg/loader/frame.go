package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ErrMissingColumn is returned when a dataset lacks a column the pipeline reads.
var ErrMissingColumn = errors.New("missing expected column")

// Every column is loaded as text; numeric coercion happens per field so one
// bad value becomes a missing value instead of failing the whole column.
var loadOptions = []dataframe.LoadOption{
	dataframe.DetectTypes(false),
	dataframe.DefaultType(series.String),
	dataframe.NaNValues(nil),
}

// frame wraps a gota DataFrame that may be empty. gota refuses to build a
// frame without data rows, so an empty result is tracked separately along
// with its header, when one was read.
type frame struct {
	df    dataframe.DataFrame
	empty bool
	names []string
}

// emptyFrame keeps header so column checks still apply to a header-only input.
func emptyFrame(header []string) frame {
	return frame{empty: true, names: header}
}

func (f frame) columnNames() []string {
	if f.empty {
		return f.names
	}
	return f.df.Names()
}

func (f frame) Nrow() int {
	if f.empty {
		return 0
	}
	return f.df.Nrow()
}

// column returns a column's values, or nil for an empty frame.
func (f frame) column(name string) []string {
	if f.empty {
		return nil
	}
	return f.df.Col(name).Records()
}

// optionalColumn returns a column's values, or blanks when the column is absent.
func (f frame) optionalColumn(name string) []string {
	if f.empty {
		return nil
	}
	for _, n := range f.df.Names() {
		if n == name {
			return f.df.Col(name).Records()
		}
	}
	return make([]string, f.df.Nrow())
}

// require fails with ErrMissingColumn for the first absent column. Only an
// empty input with no header at all has nothing to check.
func (f frame) require(dataset string, cols ...string) error {
	present := f.columnNames()
	if f.empty && present == nil {
		return nil
	}
	names := make(map[string]bool, len(present))
	for _, n := range present {
		names[n] = true
	}
	for _, c := range cols {
		if !names[c] {
			return fmt.Errorf("%s: %w %q", dataset, ErrMissingColumn, c)
		}
	}
	return nil
}

func frameFromRecords(records [][]string) (frame, error) {
	if len(records) == 0 {
		return emptyFrame(nil), nil
	}
	if len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	if len(records) == 1 {
		return emptyFrame(records[0]), nil
	}
	df := dataframe.LoadRecords(records, loadOptions...)
	if df.Err != nil {
		return frame{}, fmt.Errorf("failed to build frame: %w", df.Err)
	}
	return frame{df: df}, nil
}

func frameFromMaps(rows []map[string]interface{}) (frame, error) {
	if len(rows) == 0 {
		return emptyFrame(nil), nil
	}
	df := dataframe.LoadMaps(rows, loadOptions...)
	if df.Err != nil {
		return frame{}, fmt.Errorf("failed to build frame: %w", df.Err)
	}
	return frame{df: df}, nil
}

func readCSV(r io.Reader) (frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return frame{}, fmt.Errorf("failed to read CSV: %w", err)
	}
	return frameFromRecords(records)
}

// readCSVFile reports ok=false when the file does not exist.
func readCSVFile(path string) (frame, bool, error) {
	if path == "" {
		return frame{}, false, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return frame{}, false, nil
	}
	if err != nil {
		return frame{}, false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	fr, err := readCSV(f)
	if err != nil {
		return frame{}, true, fmt.Errorf("%s: %w", path, err)
	}
	return fr, true, nil
}
