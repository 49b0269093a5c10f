package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hafizlabs/hafiz-agent/examples"
)

// runInit initializes a Hafız working directory with default files.
// It creates the directory structure and writes the bundled example
// config and persona override. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Hafız workspace in %s\n", dir)

	for _, sub := range []string{"data", "personas"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	configPath := filepath.Join(dir, "hafiz.yaml")
	if err := writeIfMissing(configPath, examples.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	personaPath := filepath.Join(dir, "personas", "hafiz.txt")
	if err := writeIfMissing(personaPath, examples.HafizPersona); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", personaPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit hafiz.yaml and personas/hafiz.txt to customize your installation.")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}
