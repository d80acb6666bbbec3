package logging

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum-optimism/infra/op-subtest/types"
)

// RecordsFilename holds one JSON object per outcome record
const RecordsFilename = "records.jsonl"

// RecordEvent is the JSON shape of one outcome record
type RecordEvent struct {
	Time         time.Time     `json:"time"`
	RunID        string        `json:"run_id"`
	Test         string        `json:"test"`
	Phase        types.Phase   `json:"phase"`
	CompileIndex int           `json:"compile_index,omitempty"`
	ExecIndex    int           `json:"exec_index,omitempty"`
	Trial        int           `json:"trial,omitempty"`
	Outcome      types.Outcome `json:"outcome"`
	Future       string        `json:"future,omitempty"`
	BadMismatch  bool          `json:"bad_file_mismatch,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	Artifact     string        `json:"artifact,omitempty"`
	Elapsed      float64       `json:"elapsed"`
}

// JSONRecordSink appends every record to records.jsonl in the run directory
type JSONRecordSink struct {
	logger *EventLog
}

// Consume writes one line for rec
func (s *JSONRecordSink) Consume(rec *types.OutcomeRecord, runID string) error {
	w, err := s.logger.asyncWriter(filepath.Join(s.logger.LogDir(), RecordsFilename))
	if err != nil {
		return err
	}
	data, err := json.Marshal(RecordEvent{
		Time:         time.Now(),
		RunID:        runID,
		Test:         rec.Test,
		Phase:        rec.Phase,
		CompileIndex: rec.CompileIndex,
		ExecIndex:    rec.ExecIndex,
		Trial:        rec.Trial,
		Outcome:      rec.Outcome,
		Future:       rec.Future,
		BadMismatch:  rec.BadFileMismatch,
		Detail:       rec.Detail,
		Artifact:     rec.Artifact,
		Elapsed:      rec.Duration.Seconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// Complete is a no-op; the file is closed with the event log
func (s *JSONRecordSink) Complete(string) error {
	return nil
}
