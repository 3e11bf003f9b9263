package crawler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/thomasvincent/gps-genealogy-agents-sub002/internal/model"
)

// checkpointVersion is the on-disk checkpoint format version
const checkpointVersion = "1"

// State is the resumable crawl state: the active queue, the full seen set,
// and the run counters. Loading a checkpoint and continuing must behave
// identically to a run that was never interrupted.
type State struct {
	Queue    []model.CrawlFrontierEntry `json:"queue"`
	Seen     []string                   `json:"seen"`
	Counters Counters                   `json:"counters"`
}

type checkpointFile struct {
	Version  string    `json:"version"`
	SavedAt  time.Time `json:"saved_at"`
	Checksum string    `json:"checksum"`
	State    State     `json:"state"`
}

// SaveCheckpoint writes the state atomically (temp file + rename) with a
// sha256 integrity checksum
func SaveCheckpoint(path string, state State) error {
	// Sorted seen set keeps checkpoints byte-stable for identical state.
	sort.Strings(state.Seen)

	sum, err := stateChecksum(state)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(checkpointFile{
		Version:  checkpointVersion,
		SavedAt:  time.Now().UTC(),
		Checksum: sum,
		State:    state,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads and verifies a checkpoint. A missing file returns an
// empty state and found=false.
func LoadCheckpoint(path string) (State, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var file checkpointFile
	if err := json.Unmarshal(data, &file); err != nil {
		return State{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	if file.Version != checkpointVersion {
		return State{}, false, fmt.Errorf("unsupported checkpoint version %q", file.Version)
	}
	sum, err := stateChecksum(file.State)
	if err != nil {
		return State{}, false, err
	}
	if sum != file.Checksum {
		return State{}, false, fmt.Errorf("checkpoint checksum mismatch (corrupt file?)")
	}
	return file.State, true, nil
}

func stateChecksum(state State) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint state: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
