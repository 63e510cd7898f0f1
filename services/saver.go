package services

import (
	"fmt"
	"os"
	"path/filepath"
)

// Saver is the save collaborator: it places a finished artifact under its
// final name and returns the destination path. An empty path with a nil
// error means the user cancelled the save, which callers treat as a silent
// no-op rather than an error.
type Saver interface {
	Save(suggestedFileName string, payload []byte) (string, error)
	// Reveal makes the saved artifact discoverable (the host file browser
	// equivalent). Best effort.
	Reveal(path string)
}

// DirSaver writes artifacts into a fixed directory, the backend analog of the
// desktop save dialog.
type DirSaver struct {
	Dir string
}

func (d *DirSaver) Save(suggestedFileName string, payload []byte) (string, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	dest := filepath.Join(d.Dir, filepath.Base(suggestedFileName))
	if err := os.WriteFile(dest, payload, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return dest, nil
}

func (d *DirSaver) Reveal(string) {}
