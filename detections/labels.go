package detections

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ParseLabels reads one label per line, trimming whitespace and skipping blank lines.
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}

// LoadLabels reads a label table from path. Zip archives (models bundled with
// metadata) are searched for their label file; anything else is read as text.
func LoadLabels(path string) ([]string, error) {
	labels, err := labelsFromArchive(path)
	if err == nil {
		return labels, nil
	}
	if !errors.Is(err, zip.ErrFormat) {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open label table: %w", err)
	}
	defer f.Close()

	labels, err = ParseLabels(f)
	if err != nil {
		return nil, fmt.Errorf("read label table %s: %w", path, err)
	}
	return labels, nil
}

// LabelsFromModel extracts the label table bundled inside a model asset. Models
// without one yield an empty table and no error.
func LabelsFromModel(modelPath string) ([]string, error) {
	labels, err := labelsFromArchive(modelPath)
	if errors.Is(err, zip.ErrFormat) {
		return nil, nil
	}
	return labels, err
}

func labelsFromArchive(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var candidates []*zip.File
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		if !strings.Contains(name, "label") {
			continue
		}
		if strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".labels") || strings.HasSuffix(name, "labelmap") {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].Name) < len(candidates[j].Name)
	})

	rc, err := candidates[0].Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", candidates[0].Name, path, err)
	}
	defer rc.Close()
	return ParseLabels(rc)
}
