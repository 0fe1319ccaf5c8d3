package detections

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestParseLabels(t *testing.T) {
	labels, err := ParseLabels(strings.NewReader("person\n  bicycle \n\n\ncar\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "bicycle", "car"}, labels)
}

func TestLoadLabelsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat\ndog\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, labels)
}

func TestLoadLabelsArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.tflite")
	writeZip(t, path, map[string]string{
		"README.md":              "not labels",
		"labelmap.txt":           "person\ncar\n",
		"extra/labels_debug.txt": "wrong\n",
	})

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "car"}, labels)
}

func TestLoadLabelsMissingFile(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLabelsFromModel(t *testing.T) {
	dir := t.TempDir()

	t.Run("plain model has no table", func(t *testing.T) {
		path := filepath.Join(dir, "plain.onnx")
		require.NoError(t, os.WriteFile(path, []byte("not an archive at all"), 0o644))

		labels, err := LabelsFromModel(path)
		require.NoError(t, err)
		assert.Empty(t, labels)
	})

	t.Run("archive without label entry", func(t *testing.T) {
		path := filepath.Join(dir, "nolabels.tflite")
		writeZip(t, path, map[string]string{"metadata.json": "{}"})

		labels, err := LabelsFromModel(path)
		require.NoError(t, err)
		assert.Empty(t, labels)
	})

	t.Run("bundled table", func(t *testing.T) {
		path := filepath.Join(dir, "bundled.tflite")
		writeZip(t, path, map[string]string{"coco.labels": "person\n"})

		labels, err := LabelsFromModel(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"person"}, labels)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := LabelsFromModel(filepath.Join(dir, "missing.tflite"))
		assert.Error(t, err)
	})
}
