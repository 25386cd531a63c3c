// Package batch loads provider-shaped record files and runs the pipeline
// over them with a bounded worker pool.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/haneul-labs/mailaction/pkg/pipeline"
)

// Record is one entry of the provider batch file.
type Record struct {
	RecordID string
	Email    *pipeline.RawEmail
}

// envelope is the wire shape of the batch file: {"values":[{"recordId","data":{...}}]}.
type envelope struct {
	Values []struct {
		RecordID string          `json:"recordId"`
		Data     json.RawMessage `json:"data"`
	} `json:"values"`
}

// LoadRecords reads a batch file and decodes each record's data payload.
// Records with no data payload are returned with a nil Email and counted
// as skipped by the runner. A type-mismatched field inside a payload does
// not discard the rest of the record; decoding fails closed to zero values.
func LoadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}

	records := make([]Record, 0, len(env.Values))
	for _, v := range env.Values {
		rec := Record{RecordID: v.RecordID}
		if rec.RecordID == "" {
			rec.RecordID = "unknown"
		}
		if len(v.Data) > 0 && string(v.Data) != "null" {
			var raw pipeline.RawEmail
			err := json.Unmarshal(v.Data, &raw)
			var typeErr *json.UnmarshalTypeError
			if err == nil || errors.As(err, &typeErr) {
				raw.RecordID = rec.RecordID
				rec.Email = &raw
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
