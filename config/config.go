// Package config defines the configuration of a projection session: the compute backend, the
// matrix preparation thresholds, the frame queue, the failure policy and the cameras.
package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/panorama/logging"
	"go.viam.com/panorama/rimage/transform"
	"go.viam.com/panorama/rimage/transform/compute"
	"go.viam.com/panorama/utils/queue"
)

// Backend names accepted in Config.Backend.
const (
	BackendSequential = "sequential"
	BackendParallel   = "parallel"
)

// DefaultQueueSize is used when no queue size is configured.
const DefaultQueueSize = 8

// FailurePolicy decides what the stitching pipeline does with a frame whose mapping fails.
type FailurePolicy string

const (
	// FailureSkip drops the frame and reports its error.
	FailureSkip FailurePolicy = "skip"
	// FailureReuse substitutes the last good mapping of the same camera and op.
	FailureReuse FailurePolicy = "reuse"
	// FailureHalt stops the session with the error.
	FailureHalt FailurePolicy = "halt"
)

// Validate checks that the policy is known.
func (p FailurePolicy) Validate() error {
	switch p {
	case FailureSkip, FailureReuse, FailureHalt:
		return nil
	default:
		return errors.Errorf("unknown failure policy %q", string(p))
	}
}

// ParallelConfig configures the parallel backend.
type ParallelConfig struct {
	Workers                  int `json:"workers,omitempty"`
	MinBatch                 int `json:"min_batch,omitempty"`
	MaxConcurrentSubmissions int `json:"max_concurrent_submissions,omitempty"`
}

// QueueConfig configures the frame queue.
type QueueConfig struct {
	Size   int              `json:"size,omitempty"`
	Policy queue.FullPolicy `json:"policy"`
}

// Config describes a projection session.
type Config struct {
	Backend       string                      `json:"backend,omitempty"`
	Parallel      ParallelConfig              `json:"parallel"`
	Prepare       transform.PrepareOptions    `json:"prepare"`
	Queue         QueueConfig                 `json:"queue"`
	FailurePolicy FailurePolicy               `json:"failure_policy,omitempty"`
	LogLevel      logging.Level               `json:"log_level,omitempty"`
	Cameras       map[string]CameraParameters `json:"cameras"`
}

// Default returns a config with every default applied and no cameras.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in unset fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Backend == "" {
		cfg.Backend = BackendSequential
	}
	if cfg.Prepare.MaxConditionNumber == 0 {
		cfg.Prepare.MaxConditionNumber = transform.DefaultMaxConditionNumber
	}
	if cfg.Queue.Size == 0 {
		cfg.Queue.Size = DefaultQueueSize
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailureSkip
	}
}

// Validate returns every problem with the config, combined.
func (cfg *Config) Validate(path string) error {
	var allErrs error
	switch strings.ToLower(cfg.Backend) {
	case BackendSequential, BackendParallel:
	case "":
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationFieldRequiredError(path, "backend"))
	default:
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path,
			errors.Errorf("backend must be %q or %q, got %q", BackendSequential, BackendParallel, cfg.Backend)))
	}
	if cfg.Parallel.Workers < 0 || cfg.Parallel.MinBatch < 0 || cfg.Parallel.MaxConcurrentSubmissions < 0 {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(joinPath(path, "parallel"),
			errors.New("values must not be negative")))
	}
	if cfg.Prepare.MinAbsDeterminant < 0 || cfg.Prepare.MaxConditionNumber < 0 {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(joinPath(path, "prepare"),
			errors.New("thresholds must not be negative")))
	}
	if cfg.Queue.Size <= 0 {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(joinPath(path, "queue"),
			errors.Wrapf(queue.ErrInvalidSize, "got %d", cfg.Queue.Size)))
	}
	if err := cfg.FailurePolicy.Validate(); err != nil {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path, err))
	}
	if !cfg.LogLevel.Valid() {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path,
			errors.Errorf("unknown log level %d", int(cfg.LogLevel))))
	}
	for name, cam := range cfg.Cameras {
		if err := cam.Validate(joinPath(joinPath(path, "cameras"), name)); err != nil {
			allErrs = multierr.Append(allErrs, err)
		}
	}
	return allErrs
}

// NewBackend builds the configured compute backend.
func (cfg *Config) NewBackend() compute.Backend {
	if strings.EqualFold(cfg.Backend, BackendParallel) {
		return compute.NewParallel(compute.ParallelOptions{
			Workers:                  cfg.Parallel.Workers,
			MinBatch:                 cfg.Parallel.MinBatch,
			MaxConcurrentSubmissions: cfg.Parallel.MaxConcurrentSubmissions,
		})
	}
	return compute.NewSequential()
}

// NewEngine builds an engine on the configured backend and thresholds.
func (cfg *Config) NewEngine(logger logging.Logger) *transform.Engine {
	return transform.NewEngine(cfg.NewBackend(), cfg.Prepare, logger)
}

// DecodeAttributes decodes a generic attribute map, such as one embedded in a larger document,
// into a Config. Unknown keys are an error.
func DecodeAttributes(attributes map[string]interface{}) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      cfg,
		ErrorUnused: true,
		DecodeHook:  mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "error decoding attributes")
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", path, name)
}
