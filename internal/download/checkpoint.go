package download

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// Checkpoint records per-company download progress. It is rewritten after
// every filing so a crash resumes at exactly the next one.
type Checkpoint struct {
	CIK              string   `json:"cik"`
	LastAccession    string   `json:"last_accession_number,omitempty"`
	CompletedFilings []string `json:"completed_filings"`
	FailedFilings    []string `json:"failed_filings"`
	Timestamp        string   `json:"timestamp"`
}

// Completed reports whether an accession is already marked completed.
func (c *Checkpoint) Completed(accession string) bool {
	for _, a := range c.CompletedFilings {
		if a == accession {
			return true
		}
	}
	return false
}

// CheckpointPath returns the per-company checkpoint file location.
func CheckpointPath(checkpointDir, cik string) string {
	return filepath.Join(checkpointDir, fmt.Sprintf("download_%s.json", model.PadCIK(cik)))
}

// LoadCheckpoint reads a checkpoint, returning an empty one when the file
// does not exist yet.
func LoadCheckpoint(checkpointDir, cik string) (*Checkpoint, error) {
	path := CheckpointPath(checkpointDir, cik)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Checkpoint{CIK: model.PadCIK(cik)}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "download: read checkpoint %s", path)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "download: parse checkpoint %s", path)
	}
	return &cp, nil
}

// SaveCheckpoint writes the checkpoint atomically (write temp, rename).
func SaveCheckpoint(checkpointDir string, cp *Checkpoint) error {
	if err := os.MkdirAll(checkpointDir, 0o755); err != nil {
		return eris.Wrap(err, "download: create checkpoint dir")
	}
	cp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrap(err, "download: marshal checkpoint")
	}

	path := CheckpointPath(checkpointDir, cp.CIK)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "download: write checkpoint %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "download: rename checkpoint %s", path)
	}
	return nil
}
