package messagestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// fragmentRow is the on-disk column layout of the messages table. The column
// names are a compatibility surface: id, content, userId, timestamp, metadata,
// vector. Metadata is stored as a JSON string, not a nested type; the vector
// is a variable-length float32 list whose length is fixed per topic only by
// application-level validation on write.
type fragmentRow struct {
	ID        string    `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Content   string    `parquet:"name=content, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserID    string    `parquet:"name=userId, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Timestamp int64     `parquet:"name=timestamp, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Metadata  string    `parquet:"name=metadata, type=BYTE_ARRAY, convertedtype=UTF8"`
	Vector    []float32 `parquet:"name=vector, type=LIST, valuetype=FLOAT"`
}

// encodeRow converts a Message into its fragment representation.
// Metadata marshal failures are write-path errors and propagate.
func encodeRow(msg Message) (fragmentRow, error) {
	meta := "{}"
	if msg.Metadata != nil {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fragmentRow{}, fmt.Errorf("encoding metadata: %w", err)
		}
		meta = string(b)
	}

	return fragmentRow{
		ID:        msg.ID,
		Content:   msg.Content,
		UserID:    msg.UserID,
		Timestamp: msg.Timestamp.UnixMicro(),
		Metadata:  meta,
		Vector:    msg.Vector,
	}, nil
}

// decodeRow converts a fragment row back into a Message. Malformed metadata
// is replaced with an empty document; the second return reports whether that
// recovery happened so callers can log it.
func decodeRow(row fragmentRow) (Message, bool) {
	meta := map[string]any{}
	recovered := false
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
			meta = map[string]any{}
			recovered = true
		}
	}

	return Message{
		ID:        row.ID,
		Content:   row.Content,
		UserID:    row.UserID,
		Timestamp: time.UnixMicro(row.Timestamp).UTC(),
		Metadata:  meta,
		Vector:    row.Vector,
	}, recovered
}

// writeFragment appends one fragment file containing a single row.
func writeFragment(path string, row fragmentRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating fragment %s: %w", path, err)
	}

	pw, err := writer.NewParquetWriter(fw, new(fragmentRow), 2)
	if err != nil {
		fw.Close()
		return fmt.Errorf("creating fragment writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	if err := pw.Write(row); err != nil {
		pw.WriteStop()
		fw.Close()
		return fmt.Errorf("writing fragment row: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalizing fragment: %w", err)
	}
	return fw.Close()
}

// readFragment reads all rows of one fragment file.
func readFragment(path string) ([]fragmentRow, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening fragment %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(fragmentRow), 2)
	if err != nil {
		return nil, fmt.Errorf("creating fragment reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]fragmentRow, n)
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("reading fragment rows: %w", err)
	}
	return rows, nil
}
