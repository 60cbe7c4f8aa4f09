package report

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// TotalRow is one row of the Parquet totals export.
type TotalRow struct {
	Service    string  `parquet:"name=service, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year       int32   `parquet:"name=year, type=INT32"`
	TotalCO2Kg float64 `parquet:"name=total_co2_kg, type=DOUBLE"`
}

// EncodeTotals writes the series as a single Snappy-compressed Parquet file.
func EncodeTotals(series []Series) (*bytes.Buffer, error) {
	var rows []TotalRow
	for _, s := range series {
		for _, t := range s.Totals {
			rows = append(rows, TotalRow{Service: s.Service, Year: int32(t.Year), TotalCO2Kg: t.TotalCO2Kg})
		}
	}

	buf := new(bytes.Buffer)
	groupSize := int64(len(rows))
	if groupSize == 0 {
		groupSize = 1
	}
	pw, err := writer.NewParquetWriterFromWriter(buf, new(TotalRow), groupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write %s %d: %w", row.Service, row.Year, err)
		}
	}
	if err := stop(pw); err != nil {
		return nil, err
	}
	return buf, nil
}

// stop finalizes pw. The library panics on some malformed rows.
func stop(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
