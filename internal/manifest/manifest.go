// Package manifest persists the per-run record of download outcomes.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"
	"go-stockmedia-download/internal/paths"

	log "github.com/sirupsen/logrus"
)

var (
	ErrWrite = errors.New("manifest write failed")
	ErrRead  = errors.New("manifest read failed")
)

// Write stores m as indented JSON at baseDir/_meta/manifest.json, replacing
// any previous manifest atomically. Non-ASCII text is kept as-is.
func Write(baseDir string, m models.Manifest) (string, error) {
	target := paths.ManifestPath(baseDir)
	dir := filepath.Dir(target)
	if !helpers.CheckAndMakeDir(dir) {
		return "", fmt.Errorf("%w: cannot create %s", ErrWrite, dir)
	}
	if m.Results == nil {
		m.Results = []models.DownloadOutcome{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("%w: encoding: %w", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(dir, paths.ManifestFile+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			if removeErr := os.Remove(tmpName); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				log.WithError(removeErr).Warnf("Failed to remove temporary manifest %s", tmpName)
			}
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrite, err)
	}
	committed = true

	log.Infof("Manifest written to %s (%d entries)", target, len(m.Results))
	return target, nil
}

// Read loads a manifest from path.
func Read(path string) (models.Manifest, error) {
	var m models.Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("%w: %w", ErrRead, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}
	return m, nil
}
