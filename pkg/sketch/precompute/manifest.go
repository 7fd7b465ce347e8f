package precompute

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/sketch/pkg/sketch/internalerr"
)

// manifest checkpoints a precomputation build: which relations have been
// finalized, which run files exist per relation and shard, and the last
// sentence ordinal whose counts reached a run file. Every update is written
// to a temporary sibling and renamed for atomic replacement, so a resumed
// build can skip completed relations and continue the scan from the last
// checkpoint.
type manifest struct {
	BuildID       string                   `json:"build_id"`
	NumShards     int                      `json:"num_shards"`
	LastSentence  int64                    `json:"last_sentence"` // -1 before any flush
	Relations     map[string]*relationMeta `json:"relations"`
	ScanCompleted bool                     `json:"scan_completed"`
}

type relationMeta struct {
	Completed bool                `json:"completed"`
	Runs      map[string][]string `json:"runs"` // shard (decimal) -> run files
}

func newManifest(numShards int) *manifest {
	return &manifest{
		BuildID:      ulid.MustNew(ulid.Now(), rand.Reader).String(),
		NumShards:    numShards,
		LastSentence: -1,
		Relations:    make(map[string]*relationMeta),
	}
}

func (m *manifest) relation(id string) *relationMeta {
	rm := m.Relations[id]
	if rm == nil {
		rm = &relationMeta{Runs: make(map[string][]string)}
		m.Relations[id] = rm
	}
	return rm
}

func (m *manifest) addRun(relID string, shard int, path string) {
	rm := m.relation(relID)
	key := fmt.Sprintf("%d", shard)
	rm.Runs[key] = append(rm.Runs[key], path)
}

func (m *manifest) save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode manifest: %v", internalerr.ErrInvariant, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write manifest: %v", internalerr.ErrIndexIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: finalize manifest: %v", internalerr.ErrIndexIO, err)
	}
	return nil
}

// loadManifest returns (nil, nil) when no manifest exists.
func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", internalerr.ErrIndexIO, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", internalerr.ErrIndexFormat, err)
	}
	return &m, nil
}
