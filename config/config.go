package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tutortoise/frame-detection-service/detections"
	"github.com/Tutortoise/frame-detection-service/models"
	"github.com/Tutortoise/frame-detection-service/pipeline"
)

// Config is the complete service configuration.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Detector   DetectorConfig   `yaml:"detector"`
	Labels     LabelsConfig     `yaml:"labels"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Source     SourceConfig     `yaml:"source"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// DetectorConfig selects the inference backend and the model's input contract.
// Zero geometry and an empty dtype are read from the model.
type DetectorConfig struct {
	Backend        string    `yaml:"backend"` // onnx, tflite
	ModelPath      string    `yaml:"model_path"`
	RuntimeLibrary string    `yaml:"runtime_library"` // onnxruntime shared library
	InputName      string    `yaml:"input_name"`
	OutputNames    [4]string `yaml:"output_names"` // boxes, classes, scores, count
	Width          int       `yaml:"width"`
	Height         int       `yaml:"height"`
	DType          string    `yaml:"dtype"`
	QuantScale     float64   `yaml:"quant_scale"`
	QuantZeroPoint int       `yaml:"quant_zero_point"`
	MaxDetections  int       `yaml:"max_detections"`
	Threads        int       `yaml:"threads"`
	ScoreThreshold float32   `yaml:"score_threshold"`
}

// LabelsConfig picks the label table. Path wins over the table bundled in the
// model, which wins over the builtin COCO table.
type LabelsConfig struct {
	Path    string `yaml:"path"`
	Builtin bool   `yaml:"builtin"`
}

type PipelineConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	StopTimeout   time.Duration `yaml:"stop_timeout"`
	LatencyWindow int           `yaml:"latency_window"`
}

// SourceConfig describes the still-image replay source used in place of a camera.
type SourceConfig struct {
	Images   []string      `yaml:"images"`
	Interval time.Duration `yaml:"interval"`
}

type MonitoringConfig struct {
	Addr            string        `yaml:"addr"` // empty disables the HTTP routes
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a configuration with every optional field set.
func Default() Config {
	return Config{
		Detector: DetectorConfig{
			Backend:        "onnx",
			InputName:      "images",
			OutputNames:    detections.DefaultOutputNames,
			MaxDetections:  detections.DefaultMaxDetections,
			ScoreThreshold: detections.DefaultScoreThreshold,
		},
		Labels: LabelsConfig{Builtin: true},
		Pipeline: PipelineConfig{
			PollInterval:  pipeline.DefaultPollInterval,
			StopTimeout:   pipeline.DefaultStopTimeout,
			LatencyWindow: pipeline.DefaultLatencyWindow,
		},
		Source: SourceConfig{Interval: 33 * time.Millisecond},
		Monitoring: MonitoringConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first invalid field. Errors match detections.ErrConfiguration.
func (c *Config) Validate() error {
	d := c.Detector
	switch {
	case d.Backend != "onnx" && d.Backend != "tflite":
		return invalid("detector.backend %q must be onnx or tflite", d.Backend)
	case d.ModelPath == "":
		return invalid("detector.model_path is required")
	case d.Width < 0 || d.Height < 0:
		return invalid("detector input %dx%d", d.Width, d.Height)
	case d.QuantScale < 0:
		return invalid("detector.quant_scale %v must not be negative", d.QuantScale)
	case d.MaxDetections <= 0:
		return invalid("detector.max_detections %d must be positive", d.MaxDetections)
	case d.Threads < 0:
		return invalid("detector.threads %d must not be negative", d.Threads)
	case d.ScoreThreshold < 0 || d.ScoreThreshold > 1:
		return invalid("detector.score_threshold %v outside [0, 1]", d.ScoreThreshold)
	}
	if d.DType != "" {
		if _, err := models.ParseDType(d.DType); err != nil {
			return invalid("detector.dtype: %v", err)
		}
	}

	p := c.Pipeline
	switch {
	case p.PollInterval <= 0:
		return invalid("pipeline.poll_interval %v must be positive", p.PollInterval)
	case p.StopTimeout <= 0:
		return invalid("pipeline.stop_timeout %v must be positive", p.StopTimeout)
	case p.LatencyWindow <= 0:
		return invalid("pipeline.latency_window %d must be positive", p.LatencyWindow)
	case len(c.Source.Images) > 0 && c.Source.Interval <= 0:
		return invalid("source.interval %v must be positive", c.Source.Interval)
	case c.Monitoring.ShutdownTimeout <= 0:
		return invalid("monitoring.shutdown_timeout %v must be positive", c.Monitoring.ShutdownTimeout)
	}
	return nil
}

// Backend converts the detector section for detections.Open.
func (c *Config) Backend() detections.BackendConfig {
	d := c.Detector
	return detections.BackendConfig{
		Kind:          d.Backend,
		ModelPath:     d.ModelPath,
		InputName:     d.InputName,
		OutputNames:   d.OutputNames,
		Width:         d.Width,
		Height:        d.Height,
		DType:         d.DType,
		QuantScale:    d.QuantScale,
		QuantZero:     d.QuantZeroPoint,
		MaxDetections: d.MaxDetections,
		Threads:       d.Threads,
	}
}

// PipelineOptions converts the pipeline section and the given label table.
func (c *Config) PipelineOptions(labels []string) pipeline.Config {
	return pipeline.Config{
		ScoreThreshold: c.Detector.ScoreThreshold,
		Labels:         labels,
		PollInterval:   c.Pipeline.PollInterval,
		StopTimeout:    c.Pipeline.StopTimeout,
		LatencyWindow:  c.Pipeline.LatencyWindow,
	}
}
