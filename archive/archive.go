// Package archive keeps simulation results of every results pass as a parquet
// file, so runs can be compared after ResultsSch has been overwritten.
package archive

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// NodeResult is the flooding result of one node in one run.
type NodeResult struct {
	RunID        string   `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Source       string   `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Node         string   `parquet:"name=schnam, type=BYTE_ARRAY, convertedtype=UTF8"`
	Frequency    *float64 `parquet:"name=uebstauhaeuf, type=DOUBLE, repetitiontype=OPTIONAL"`
	Count        *float64 `parquet:"name=uebstauanz, type=DOUBLE, repetitiontype=OPTIONAL"`
	MaxVolume    *float64 `parquet:"name=maxuebstauvol, type=DOUBLE, repetitiontype=OPTIONAL"`
	ImportedUnix int64    `parquet:"name=imported, type=INT64"`
}

// Write stores rows at path, replacing an existing file.
func Write(path string, rows []NodeResult) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create archive %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(NodeResult), 4)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			return fmt.Errorf("write archive row %s: %w", r.Node, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish archive %s: %w", path, err)
	}

	log.Infof("Archived %d node results to %s", len(rows), path)
	return nil
}

// Read loads every row of an archive file.
func Read(path string) ([]NodeResult, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(NodeResult), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]NodeResult, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	return rows, nil
}
