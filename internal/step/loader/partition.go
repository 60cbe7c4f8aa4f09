package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/tigerroll/tripco2/internal/domain/trip"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// columnPlan binds a declared column to a leaf of the partition schema.
type columnPlan struct {
	col trip.Column
	// index is the leaf index in the file, or -1 for an absent optional column.
	index int64
	// unit is the tick of an INT64 timestamp column.
	unit time.Duration
	// local marks timestamps that are wall-clock values rather than UTC instants.
	local bool
}

// partition is an open monthly Parquet file read column by column.
type partition struct {
	path  string
	file  source.ParquetFile
	pr    *reader.ParquetReader
	plan  []columnPlan
	loc   *time.Location
	log   *logger.Logger
	total int64
	read  int64
}

// openPartition opens path and validates its schema against cols. A file that does not
// exist wraps exception.ErrPartitionMissing and one whose columns do not fit wraps
// exception.ErrSchemaMismatch.
func openPartition(path string, cols []trip.Column, loc *time.Location, log *logger.Logger) (*partition, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, exception.NewRecoverablef(moduleName, "partition '%s' not found", path, exception.ErrPartitionMissing)
		}
		return nil, exception.NewRecoverablef(moduleName, "failed to stat partition '%s'", path, err)
	}
	f, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, exception.NewRecoverablef(moduleName, "failed to open partition '%s'", path, err)
	}
	pr, err := reader.NewParquetColumnReader(f, 1)
	if err != nil {
		f.Close()
		return nil, exception.NewRecoverablef(moduleName, "failed to read footer of '%s'", path, err)
	}
	plan, err := planColumns(pr.Footer.Schema, cols)
	if err != nil {
		pr.ReadStop()
		f.Close()
		return nil, exception.NewRecoverablef(moduleName, "partition '%s': %v", path, err, exception.ErrSchemaMismatch)
	}
	return &partition{path: path, file: f, pr: pr, plan: plan, loc: loc, log: log, total: pr.GetNumRows()}, nil
}

// planColumns matches cols to the leaves of schema by case-insensitive name.
func planColumns(schema []*parquet.SchemaElement, cols []trip.Column) ([]columnPlan, error) {
	leaves := make(map[string]int64)
	elements := make(map[string]*parquet.SchemaElement)
	var idx int64
	for i, el := range schema {
		if i == 0 || el.GetNumChildren() > 0 {
			continue
		}
		name := strings.ToLower(el.GetName())
		leaves[name] = idx
		elements[name] = el
		idx++
	}

	plan := make([]columnPlan, 0, len(cols))
	var problems []string
	for _, c := range cols {
		name := strings.ToLower(c.Source)
		el, ok := elements[name]
		if !ok {
			if c.Optional {
				plan = append(plan, columnPlan{col: c, index: -1})
				continue
			}
			problems = append(problems, fmt.Sprintf("column '%s' missing", c.Source))
			continue
		}
		p := columnPlan{col: c, index: leaves[name]}
		if err := checkType(&p, el); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		plan = append(plan, p)
	}
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return plan, nil
}

func checkType(p *columnPlan, el *parquet.SchemaElement) error {
	if !el.IsSetType() {
		return fmt.Errorf("column '%s' has no physical type", p.col.Source)
	}
	t := el.GetType()
	switch p.col.Kind {
	case trip.Int64, trip.Float64:
		switch t {
		case parquet.Type_INT32, parquet.Type_INT64, parquet.Type_FLOAT, parquet.Type_DOUBLE:
			return nil
		}
	case trip.Timestamp:
		if t != parquet.Type_INT64 {
			break
		}
		if lt := el.GetLogicalType(); lt != nil && lt.IsSetTIMESTAMP() {
			ts := lt.GetTIMESTAMP()
			p.local = !ts.GetIsAdjustedToUTC()
			p.unit = time.Microsecond
			if u := ts.GetUnit(); u != nil {
				switch {
				case u.IsSetMILLIS():
					p.unit = time.Millisecond
				case u.IsSetNANOS():
					p.unit = time.Nanosecond
				}
			}
			return nil
		}
		if el.IsSetConvertedType() {
			switch el.GetConvertedType() {
			case parquet.ConvertedType_TIMESTAMP_MILLIS:
				p.unit = time.Millisecond
				return nil
			case parquet.ConvertedType_TIMESTAMP_MICROS:
				p.unit = time.Microsecond
				return nil
			}
		}
	}
	return fmt.Errorf("column '%s' has type %s, want %s", p.col.Source, t, p.col.Kind)
}

// next reads up to n rows. It returns an empty slice once the partition is exhausted.
func (p *partition) next(n int64) ([]trip.RawTrip, error) {
	if remaining := p.total - p.read; remaining < n {
		n = remaining
	}
	if n <= 0 {
		return nil, nil
	}
	rows := make([]trip.RawTrip, n)
	for _, cp := range p.plan {
		if cp.index < 0 {
			continue
		}
		values, _, _, err := p.pr.ReadColumnByIndex(cp.index, n)
		if err != nil {
			return nil, exception.NewRecoverablef(moduleName, "failed to read column '%s' of '%s'", cp.col.Source, p.path, err)
		}
		if int64(len(values)) != n {
			return nil, exception.NewRecoverablef(moduleName, "column '%s' of '%s' returned %d of %d rows", cp.col.Source, p.path, len(values), n)
		}
		for i, v := range values {
			if err := p.assign(&rows[i], cp, v); err != nil {
				return nil, exception.NewRecoverablef(moduleName, "row %d of '%s'", p.read+int64(i), p.path, err)
			}
		}
	}
	p.read += n
	return rows, nil
}

func (p *partition) assign(row *trip.RawTrip, cp columnPlan, v interface{}) error {
	if v == nil {
		return nil
	}
	switch cp.col.Kind {
	case trip.Int64:
		i, err := asInt64(v)
		if err != nil {
			return err
		}
		return row.SetInt64(cp.col.Target, &i)
	case trip.Float64:
		f, err := asFloat64(v)
		if err != nil {
			return err
		}
		return row.SetFloat64(cp.col.Target, &f)
	default:
		ticks, ok := v.(int64)
		if !ok {
			return fmt.Errorf("unexpected %T in timestamp column '%s'", v, cp.col.Source)
		}
		s := p.timestamp(ticks, cp)
		return row.SetTimestamp(cp.col.Target, &s)
	}
}

// timestamp renders ticks in the configured location. Wall-clock values are rendered as stored.
func (p *partition) timestamp(ticks int64, cp columnPlan) string {
	var t time.Time
	switch cp.unit {
	case time.Millisecond:
		t = time.UnixMilli(ticks)
	case time.Nanosecond:
		t = time.Unix(0, ticks)
	default:
		t = time.UnixMicro(ticks)
	}
	if cp.local {
		return t.UTC().Format(trip.TimestampLayout)
	}
	return t.In(p.loc).Format(trip.TimestampLayout)
}

func (p *partition) close() {
	p.pr.ReadStop()
	if err := p.file.Close(); err != nil {
		p.log.Debugf("failed to close partition '%s': %v", p.path, err)
	}
}

// asInt64 accepts any numeric Parquet value. Fractional values are truncated.
func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	}
	return 0, fmt.Errorf("unexpected %T in integer column", v)
}

func asFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	}
	return 0, fmt.Errorf("unexpected %T in float column", v)
}
