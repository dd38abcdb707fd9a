// Package security validates grid references before they touch the
// filesystem. References arrive from outside the process (parsed provenance
// remarks, API requests), so a reference must never resolve to a file
// outside the grid distribution.
package security

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ValidateGridRef checks a distribution-relative grid reference such as
// "CAORblan01_8301/mllw.gtx" or "core/geoid12b/g2012bu0.gtx". It rejects
// absolute paths, parent-directory escapes and unexpected file types.
func ValidateGridRef(gridRef string) error {
	if gridRef == "" {
		return fmt.Errorf("empty grid reference")
	}
	if strings.Contains(gridRef, "\\") || path.IsAbs(gridRef) || filepath.IsAbs(gridRef) {
		return fmt.Errorf("grid reference %q must be distribution-relative", gridRef)
	}
	clean := path.Clean(gridRef)
	if clean != gridRef {
		return fmt.Errorf("grid reference %q is not in canonical form", gridRef)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("grid reference %q escapes the distribution root", gridRef)
	}
	switch strings.ToLower(path.Ext(clean)) {
	case ".gtx", ".tif", ".tiff":
		return nil
	}
	return fmt.Errorf("grid reference %q has an unsupported file type", gridRef)
}

// ResolveWithin joins a validated grid reference onto the distribution root
// and confirms the result stays inside it.
func ResolveWithin(basePath, gridRef string) (string, error) {
	if err := ValidateGridRef(gridRef); err != nil {
		return "", err
	}
	full := filepath.Join(basePath, filepath.FromSlash(gridRef))
	rel, err := filepath.Rel(basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("grid reference %q escapes the distribution root", gridRef)
	}
	return full, nil
}
