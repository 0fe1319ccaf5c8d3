package main

import (
	"bytes"
	_ "embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/Tutortoise/frame-detection-service/config"
	"github.com/Tutortoise/frame-detection-service/detections"
)

// COCO label map in the order TF object detection exports emit class ids.
//
//go:embed assets/coco_labels.txt
var cocoLabels []byte

func builtinLabels() ([]string, error) {
	labels, err := detections.ParseLabels(bytes.NewReader(cocoLabels))
	if err != nil {
		return nil, fmt.Errorf("failed to read builtin labels: %w", err)
	}
	return labels, nil
}

// resolveLabels picks the label table: the configured file, then the table
// bundled in the model, then the builtin one. Unreadable tables are logged and
// skipped; with nothing left detections get synthetic labels.
func resolveLabels(cfg config.LabelsConfig, modelPath string, logger *zap.SugaredLogger) []string {
	if cfg.Path != "" {
		labels, err := detections.LoadLabels(cfg.Path)
		switch {
		case err != nil:
			logger.Warnw("label table unreadable", "path", cfg.Path, "error", err)
		case len(labels) > 0:
			logger.Infow("labels loaded", "source", cfg.Path, "count", len(labels))
			return labels
		}
	}

	labels, err := detections.LabelsFromModel(modelPath)
	switch {
	case err != nil:
		logger.Warnw("model label table unreadable", "model", modelPath, "error", err)
	case len(labels) > 0:
		logger.Infow("labels loaded", "source", modelPath, "count", len(labels))
		return labels
	}

	if cfg.Builtin {
		labels, err := builtinLabels()
		if err != nil {
			logger.Warnw("builtin label table unreadable", "error", err)
			return nil
		}
		logger.Infow("labels loaded", "source", "builtin", "count", len(labels))
		return labels
	}
	return nil
}
