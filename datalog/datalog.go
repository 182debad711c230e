// Package datalog records hotfire test data to CSV. It is the one
// concrete implementation of Writer; the core state machine depends only
// on the interface (statemachine.HotfireRecorder), satisfied here.
package datalog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"groundctl/board"
)

// Writer persists a hotfire run: one header row naming every
// board_hwtype_item_field column (plus _desiredstate variants for
// actuator boards), then one row per sample.
type Writer interface {
	Open(boards []*board.Board) error
	WriteRow(boards []*board.Board) error
	Close() error
}

// CSVWriter is the encoding/csv-backed Writer, matching the test-log
// format: a leading comment line with the run's start timestamp and ADC
// calibration metadata, then a header row, then one row per sample.
type CSVWriter struct {
	dir         string
	calibration map[string]float64

	file    *os.File
	w       *csv.Writer
	columns []column
	start   time.Time
}

// NewCSVWriter returns a Writer that creates one timestamped CSV file per
// Open under dir, annotated with calibration metadata in its header
// comment.
func NewCSVWriter(dir string, calibration map[string]float64) *CSVWriter {
	return &CSVWriter{dir: dir, calibration: calibration}
}

// Open creates a new log file, writes the comment line and header, and
// fixes the column set (from boards' current item layout) for the
// duration of the run.
func (w *CSVWriter) Open(boards []*board.Board) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating log directory %q: %w", w.dir, err)
	}
	w.start = time.Now()
	path := filepath.Join(w.dir, fmt.Sprintf("hotfire_%s.csv", w.start.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating log file %q: %w", path, err)
	}
	w.file = f
	w.w = csv.NewWriter(f)

	if _, err := fmt.Fprintf(f, "# start=%s calibration=%s\n", w.start.Format(time.RFC3339), formatCalibration(w.calibration)); err != nil {
		return err
	}

	w.columns = buildColumns(boards)
	header := make([]string, len(w.columns))
	for i, c := range w.columns {
		header[i] = c.name()
	}
	return w.w.Write(header)
}

// WriteRow appends one sample row, reading each column's current value
// off the matching board's actual or desired state.
func (w *CSVWriter) WriteRow(boards []*board.Board) error {
	byName := make(map[string]*board.Board, len(boards))
	for _, b := range boards {
		byName[b.Name] = b
	}

	row := make([]string, len(w.columns))
	for i, c := range w.columns {
		b, ok := byName[c.boardName]
		if !ok {
			continue
		}
		var st board.State
		if c.desired {
			st = b.DesiredState()
		} else {
			st = b.State()
		}
		row[i] = fieldValue(st, c.hwType, c.item, c.field)
	}
	if err := w.w.Write(row); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the underlying file.
func (w *CSVWriter) Close() error {
	if w.w != nil {
		w.w.Flush()
	}
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// column identifies one board_hwtype_item_field CSV column.
type column struct {
	boardName string
	hwType    board.HardwareType
	item      string
	field     string
	desired   bool
}

func (c column) name() string {
	n := fmt.Sprintf("%s_%s_%s_%s", c.boardName, c.hwType, c.item, c.field)
	if c.desired {
		n += "_desiredstate"
	}
	return n
}

// buildColumns fixes the column set from each board's current item
// layout: one column per actual-state field, plus one per
// desired-state field for actuator boards.
func buildColumns(boards []*board.Board) []column {
	sorted := append([]*board.Board(nil), boards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var cols []column
	for _, b := range sorted {
		cols = append(cols, columnsFromState(b.Name, b.State(), false)...)
		if b.Config.IsActuator {
			cols = append(cols, columnsFromState(b.Name, b.DesiredState(), true)...)
		}
	}
	return cols
}

func columnsFromState(boardName string, st board.State, desired bool) []column {
	var cols []column
	for _, hwType := range board.AllHardwareTypes {
		items := stateItems(st, hwType)
		names := make([]string, 0, len(items))
		for name := range items {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, field := range fieldsOf(items[name]) {
				cols = append(cols, column{boardName: boardName, hwType: hwType, item: name, field: field, desired: desired})
			}
		}
	}
	return cols
}

// stateItems returns hwType's items from st as a generic map, keyed by
// item name, so column construction and value lookup can share one
// reflection-based code path across all eight hardware types.
func stateItems(st board.State, hwType board.HardwareType) map[string]any {
	out := map[string]any{}
	switch hwType {
	case board.PTS:
		for k, v := range st.PTS {
			out[k] = v
		}
	case board.TCS:
		for k, v := range st.TCS {
			out[k] = v
		}
	case board.LoadCells:
		for k, v := range st.LoadCells {
			out[k] = v
		}
	case board.Servos:
		for k, v := range st.Servos {
			out[k] = v
		}
	case board.Solenoids:
		for k, v := range st.Solenoids {
			out[k] = v
		}
	case board.Pyros:
		for k, v := range st.Pyros {
			out[k] = v
		}
	case board.IMUs:
		for k, v := range st.IMUs {
			out[k] = v
		}
	case board.GNSS:
		for k, v := range st.GNSS {
			out[k] = v
		}
	}
	return out
}

// fieldsOf lists item's json-tagged field names in declaration order.
func fieldsOf(item any) []string {
	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		out = append(out, strings.Split(tag, ",")[0])
	}
	return out
}

// fieldValue returns field's current value off the named item, formatted
// for a CSV cell. Missing items/fields produce an empty cell rather than
// an error, since a board's item layout is fixed at construction and
// should never actually miss here.
func fieldValue(st board.State, hwType board.HardwareType, item, field string) string {
	items := stateItems(st, hwType)
	it, ok := items[item]
	if !ok {
		return ""
	}
	v := reflect.ValueOf(it)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if tag == field {
			return fmt.Sprintf("%v", v.Field(i).Interface())
		}
	}
	return ""
}

func formatCalibration(calibration map[string]float64) string {
	keys := make([]string, 0, len(calibration))
	for k := range calibration {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, calibration[k]))
	}
	return strings.Join(parts, ",")
}
