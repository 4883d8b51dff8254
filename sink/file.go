package sink

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/loess-io/gleaner/oai"
)

// recordNamespaces are declared on the synthetic root element so the
// verbatim metadata payloads stay resolvable.
var recordNamespaces = map[string]string{
	"xsi":    "http://www.w3.org/2001/XMLSchema-instance",
	"dc":     "http://purl.org/dc/elements/1.1/",
	"oai_dc": "http://www.openarchives.org/OAI/2.0/oai_dc/",
}

// FileConfig holds file sink settings.
type FileConfig struct {
	// Dir is the output root (required).
	Dir string
	// Endpoint is the repository base URL; its host and path become path
	// components so one root can hold many targets.
	Endpoint string
	// Prefix is the metadata prefix, another path component.
	Prefix string
	// Compress gzips record files.
	Compress bool
}

// FileSink writes one XML file per set under
// <dir>/<host>/<endpoint path>/<prefix>/<set|all>.xml, records framed by a synthetic
// <records> root. Files are truncated on first open, which makes replaying
// a batch after a crash-resume safe.
type FileSink struct {
	config  FileConfig
	subdir  string
	mu      sync.Mutex
	closed  bool
	files   map[string]*setFile
	tracker latestTracker
	counts  map[string]int64
}

type setFile struct {
	file *os.File
	gz   *gzip.Writer
	w    io.Writer
	name string
}

// NewFileSink creates a file sink. The output directory is created on
// first write.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("sink: an output directory is required")
	}
	sub := ""
	if cfg.Endpoint != "" {
		ref, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("sink: invalid endpoint: %w", err)
		}
		sub = filepath.Join(ref.Host, ref.Path)
	}
	return &FileSink{
		config: cfg,
		subdir: sub,
		files:  make(map[string]*setFile),
		counts: make(map[string]int64),
	}, nil
}

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, set string, records []oai.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.fileFor(set)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if err := writeRecord(sf.w, rec); err != nil {
			return "", fmt.Errorf("sink: write record: %w", err)
		}
	}
	s.counts[set] += int64(len(records))
	s.tracker.observe(records)
	return s.tracker.latest, nil
}

// fileFor lazily opens the per-set output file and writes the opening
// root tag.
func (s *FileSink) fileFor(set string) (*setFile, error) {
	if sf, ok := s.files[set]; ok {
		return sf, nil
	}

	dir := filepath.Join(s.config.Dir, s.subdir, s.config.Prefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", dir, err)
	}
	name := setFileName(set, s.config.Compress)
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", path, err)
	}

	sf := &setFile{file: file, w: file, name: filepath.Join(s.subdir, s.config.Prefix, name)}
	if s.config.Compress {
		sf.gz = gzip.NewWriter(file)
		sf.w = sf.gz
	}
	if err := writeRootStart(sf.w); err != nil {
		_ = file.Close()
		return nil, err
	}
	s.files[set] = sf
	return sf, nil
}

// Close closes the root tags and all files, then writes the run manifest.
// Closing twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, sf := range s.files {
		if _, err := io.WriteString(sf.w, "</records>\n"); err != nil && firstErr == nil {
			firstErr = err
		}
		if sf.gz != nil {
			if err := sf.gz.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := sf.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("sink: close: %w", firstErr)
	}
	if len(s.files) == 0 {
		return nil
	}
	return s.writeManifest()
}

// Latest returns the most recent record datestamp seen.
func (s *FileSink) Latest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.latest
}

func setFileName(set string, compress bool) string {
	name := set
	if name == "" {
		name = "all"
	}
	if compress {
		return name + ".xml.gz"
	}
	return name + ".xml"
}

func writeRootStart(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	tag := "<records"
	for k, v := range recordNamespaces {
		tag += fmt.Sprintf(" xmlns:%s=%q", k, v)
	}
	tag += ">\n"
	_, err := io.WriteString(w, tag)
	return err
}

// writeRecord frames one record. The header fields are re-encoded; the
// metadata and about payloads are emitted verbatim as received.
func writeRecord(w io.Writer, rec oai.Record) error {
	if _, err := io.WriteString(w, "<record>"); err != nil {
		return err
	}
	header, err := xml.Marshal(struct {
		XMLName    xml.Name `xml:"header"`
		Status     string   `xml:"status,attr,omitempty"`
		Identifier string   `xml:"identifier"`
		Datestamp  string   `xml:"datestamp"`
		Sets       []string `xml:"setSpec"`
	}{
		Status:     rec.Header.Status,
		Identifier: rec.Header.Identifier,
		Datestamp:  rec.Header.Datestamp,
		Sets:       rec.Header.Sets,
	})
	if err != nil {
		return err
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	if rec.Metadata.Verbatim != "" {
		if _, err := fmt.Fprintf(w, "<metadata>%s</metadata>", rec.Metadata.Verbatim); err != nil {
			return err
		}
	}
	if rec.About.Verbatim != "" {
		if _, err := fmt.Fprintf(w, "<about>%s</about>", rec.About.Verbatim); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "</record>\n")
	return err
}

// Verify FileSink implements Sink.
var _ Sink = (*FileSink)(nil)
