package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ManifestFileName is the run manifest written next to the record files.
const ManifestFileName = "manifest.msgpack"

// Manifest summarizes one harvest run for downstream indexers.
type Manifest struct {
	GeneratedAt     time.Time          `msgpack:"generated_at"`
	Endpoint        string             `msgpack:"endpoint"`
	Prefix          string             `msgpack:"prefix"`
	LatestDatestamp string             `msgpack:"latest_datestamp"`
	Sets            map[string]SetInfo `msgpack:"sets"`
}

// SetInfo is the per-set slice of a manifest.
type SetInfo struct {
	Records int64  `msgpack:"records"`
	File    string `msgpack:"file"`
}

// writeManifest encodes the run summary as msgpack next to the record
// files.
func (s *FileSink) writeManifest() error {
	m := Manifest{
		GeneratedAt:     time.Now().UTC(),
		Endpoint:        s.config.Endpoint,
		Prefix:          s.config.Prefix,
		LatestDatestamp: s.tracker.latest,
		Sets:            make(map[string]SetInfo, len(s.files)),
	}
	for set, sf := range s.files {
		m.Sets[set] = SetInfo{Records: s.counts[set], File: sf.name}
	}

	data, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("sink: encode manifest: %w", err)
	}
	path := filepath.Join(s.config.Dir, s.subdir, s.config.Prefix, ManifestFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("sink: write manifest: %w", err)
	}
	return nil
}

// ReadManifest decodes a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sink: read manifest: %w", err)
	}
	var m Manifest
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("sink: decode manifest: %w", err)
	}
	return &m, nil
}
