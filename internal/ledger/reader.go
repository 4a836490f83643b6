package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

// ReadAgentLedger parses one agent's actions.jsonl. Blank lines are skipped;
// a malformed line is an error, since the writer never produces one.
func ReadAgentLedger(path string) ([]schemas.ActionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	var records []schemas.ActionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record schemas.ActionRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", path, lineNo, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	return records, nil
}

// ReadRunLedgers collects every agent's records under a run directory, keyed
// by agent id (the ledger subdirectory name).
func ReadRunLedgers(runDir string) (map[string][]schemas.ActionRecord, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("read run dir %s: %w", runDir, err)
	}

	ledgers := make(map[string][]schemas.ActionRecord)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(runDir, entry.Name(), "actions.jsonl")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		records, err := ReadAgentLedger(path)
		if err != nil {
			return nil, err
		}
		ledgers[entry.Name()] = records
	}
	return ledgers, nil
}

// LatestRunDir returns the most recently modified run directory under
// outputDir, used when the evaluator is invoked without an explicit run.
func LatestRunDir(outputDir string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("read output dir %s: %w", outputDir, err)
	}

	type candidate struct {
		path  string
		mtime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:  filepath.Join(outputDir, entry.Name()),
			mtime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no run directories under %s", outputDir)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mtime > candidates[j].mtime })
	return candidates[0].path, nil
}
