package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is a parsed workflow definition plus the bookkeeping needed to
// detect a changed file on disk across orchestrator restarts.
type File struct {
	Path       string
	Definition *Definition
	Checksum   string
}

// LoadResult collects every successfully parsed workflow file in a
// directory scan alongside per-file errors, so one malformed workflow
// never blocks loading the rest.
type LoadResult struct {
	Files  []*File
	Errors []LoadError
}

// LoadError pairs a failed file path with its parse/validation error.
type LoadError struct {
	Path string
	Err  error
}

// Loader reads workflow definitions from a directory of .yaml/.yml/.json
// files.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadAll scans Loader's directory for workflow files and parses each one.
func (l *Loader) LoadAll() (*LoadResult, error) {
	result := &LoadResult{}

	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return result, nil
	}

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml", "*.json"} {
		matches, err := filepath.Glob(filepath.Join(l.dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", pattern, err)
		}
		paths = append(paths, matches...)
	}

	for _, path := range paths {
		file, err := l.LoadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, LoadError{Path: path, Err: err})
			continue
		}
		result.Files = append(result.Files, file)
	}

	return result, nil
}

// LoadFile parses a single workflow definition file.
func (l *Loader) LoadFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	def := &Definition{}
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(content, def); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(content, def); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	}

	if def.ID == "" {
		def.ID = idFromFilename(path)
	}

	return &File{
		Path:       path,
		Definition: def,
		Checksum:   checksum(content),
	}, nil
}

func idFromFilename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
