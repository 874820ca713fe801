package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/E21ZS-CUBE/Internet-Shutdown/internal/model"
)

// SnapshotState is the on-disk form of the last published snapshot, used to
// warm-start the service before the first refresh completes.
type SnapshotState struct {
	CycleID string                `json:"cycle_id"`
	AsOf    time.Time             `json:"as_of"`
	Events  []model.ShutdownEvent `json:"events"`
}

func LoadSnapshotState(path string) (SnapshotState, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SnapshotState{}, err
	}
	var s SnapshotState
	if err := json.Unmarshal(b, &s); err != nil {
		return SnapshotState{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// SaveSnapshotState replaces path via a temp file and rename.
func SaveSnapshotState(path string, s SnapshotState) error {
	b, err := json.MarshalIndent(s, "", " ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
