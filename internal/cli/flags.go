// Package cli holds argument validation shared by the cobra commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"postgrator/internal/api"
)

// ValidateJobID rejects ids that cannot form a URL path segment.
func ValidateJobID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("empty job id")
	}
	if strings.ContainsAny(id, "/?#% \t") {
		return "", fmt.Errorf("invalid job id %q", id)
	}
	return id, nil
}

// ValidateArtifact checks name against the downloadable report files.
func ValidateArtifact(name string) error {
	if !api.IsArtifact(name) {
		return fmt.Errorf("%w: %q (valid: %s)", api.ErrInvalidArtifact, name, strings.Join(api.Artifacts, "|"))
	}
	return nil
}

// ValidateBackup checks that path is a readable .bak file.
func ValidateBackup(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".bak") {
		return "", fmt.Errorf("only .bak files are accepted: %q", path)
	}
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if st.IsDir() {
		return "", fmt.Errorf("%q is a directory", path)
	}
	return filepath.Clean(path), nil
}

// ValidatePage checks a 1-based page number.
func ValidatePage(page int) error {
	if page < 1 {
		return fmt.Errorf("invalid --page: %d (must be >= 1)", page)
	}
	return nil
}
