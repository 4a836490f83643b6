// Package ledger persists the append-only action trail each agent leaves
// behind: one line-delimited JSON stream per agent plus a discrete JSON file
// per action, both under {outputDir}/{runId}/{agentId}/.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteJSONAtomic marshals payload and renames it into place so a concurrent
// reader never observes a partially written document.
func WriteJSONAtomic(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Writer is the single ledger writer for one agent. Sequence numbers start at
// 1 and are contiguous; records are never rewritten once appended.
type Writer struct {
	mu      sync.Mutex
	runID   string
	agentID string
	dir     string
	seq     int
	jsonl   *os.File
	now     func() time.Time
}

// NewWriter creates the agent's ledger directory and opens its JSONL stream
// for appending.
func NewWriter(outputDir, runID, agentID string) (*Writer, error) {
	dir := filepath.Join(outputDir, runID, agentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "actions.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open actions.jsonl: %w", err)
	}

	return &Writer{
		runID:   runID,
		agentID: agentID,
		dir:     dir,
		jsonl:   f,
		now:     time.Now,
	}, nil
}

// Dir returns the agent's ledger directory.
func (w *Writer) Dir() string { return w.dir }

// Seq returns the sequence number of the most recently written record.
func (w *Writer) Seq() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Record appends one action record: a line in actions.jsonl plus an
// atomically written %04d_{type}.json file.
func (w *Writer) Record(recordType schemas.RecordType, status schemas.RecordStatus, input, output map[string]any, artifacts []string) (schemas.ActionRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	record := schemas.ActionRecord{
		RunID:     w.runID,
		AgentID:   w.agentID,
		Seq:       w.seq,
		Timestamp: w.now().UTC(),
		Type:      recordType,
		Status:    status,
		Input:     input,
		Output:    output,
		Artifacts: artifacts,
	}

	line, err := json.Marshal(record)
	if err != nil {
		return record, fmt.Errorf("marshal action record: %w", err)
	}
	if _, err := w.jsonl.Write(append(line, '\n')); err != nil {
		return record, fmt.Errorf("append to actions.jsonl: %w", err)
	}

	filename := fmt.Sprintf("%04d_%s.json", w.seq, recordType)
	if err := WriteJSONAtomic(filepath.Join(w.dir, filename), record); err != nil {
		return record, err
	}
	return record, nil
}

// SaveArtifact writes binary content (e.g. a screenshot) next to the ledger
// and returns its path for embedding in a record's artifact list.
func (w *Writer) SaveArtifact(filename string, content []byte) (string, error) {
	path := filepath.Join(w.dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("save artifact %s: %w", filename, err)
	}
	return path, nil
}

// Close flushes and closes the JSONL stream.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.jsonl == nil {
		return nil
	}
	err := w.jsonl.Close()
	w.jsonl = nil
	return err
}
