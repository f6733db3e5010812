// Package config handles the acquisition daemon's static configuration,
// loaded via viper from a YAML file with environment-variable overrides,
// grounded on the teacher's global-config loader
// (internal/config/config.go's Load/setDefaults/ValidateAndApplyDefaults
// sequence) but re-keyed and re-shaped for spec.md §6's "Configuration
// surface".
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// RunConfig is the top-level static configuration for one acquisition
// run. Maps to the `acquisitiond:` root key in YAML.
type RunConfig struct {
	ExperimentPath    string         `mapstructure:"experiment_path"`
	TotalTimepoints   int            `mapstructure:"total_timepoints"`
	ProgressionPolicy string         `mapstructure:"progression_policy"` // auto|manual|qc_gated
	Plan              PlanConfig     `mapstructure:"plan"`
	QC                QCConfig       `mapstructure:"qc"`
	Policy            PolicyConfig   `mapstructure:"policy"`
	Runner            RunnerConfig   `mapstructure:"runner"`
	Control           ControlConfig  `mapstructure:"control"`
	Metrics           MetricsConfig  `mapstructure:"metrics"`
	Log               LogConfig      `mapstructure:"log"`
}

// PlanConfig describes the fixed set of FOVs to capture each timepoint
// and the channels captured per FOV (spec.md §4.E "per-run outline").
type PlanConfig struct {
	Regions  []RegionConfig `mapstructure:"regions"`
	Channels []string       `mapstructure:"channels"`
}

// RegionConfig names one region and its FOVs' fixed stage positions. FOV
// indices within a region run 0..len(FOVs)-1, and FOVCount mirrors
// len(FOVs) for readability in YAML and validation.
type RegionConfig struct {
	ID       string          `mapstructure:"id"`
	FOVCount int             `mapstructure:"fov_count"`
	FOVs     []FOVPlanConfig `mapstructure:"fovs"`
}

// FOVPlanConfig is one FOV's fixed stage coordinates, visited in plan
// order each timepoint.
type FOVPlanConfig struct {
	XMM float64 `mapstructure:"x_mm"`
	YMM float64 `mapstructure:"y_mm"`
	ZMM float64 `mapstructure:"z_mm"`
}

// QCConfig is the QC-configuration surface from spec.md §3/§6.
type QCConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ComputeFocusScore bool   `mapstructure:"compute_focus_score"`
	ComputeLaserAF    bool   `mapstructure:"compute_laser_af"`
	ComputeZDiff      bool   `mapstructure:"compute_z_diff"`
	FocusScoreMethod  string `mapstructure:"focus_score_method"` // laplacian_variance|normalized_variance|gradient_magnitude|fft_high_freq
}

// PolicyConfig is the policy-configuration surface from spec.md §3/§6.
// Pointer fields are nil (rule disabled) unless set in YAML.
type PolicyConfig struct {
	Enabled           bool                `mapstructure:"enabled"`
	FocusScoreMin     *float64            `mapstructure:"focus_score_min"`
	ZDriftMaxUM       *float64            `mapstructure:"z_drift_max_um"`
	DetectOutliers    *OutlierRuleConfig  `mapstructure:"detect_outliers"`
	PauseIfAnyFlagged bool                `mapstructure:"pause_if_any_flagged"`
}

// OutlierRuleConfig names the outlier-detection metric and multiplier.
type OutlierRuleConfig struct {
	MetricName   string  `mapstructure:"metric_name"`
	StdThreshold float64 `mapstructure:"std_threshold"`
}

// RunnerConfig configures the Job Runner's worker pool (spec.md §4.C
// "Concurrency model").
type RunnerConfig struct {
	Workers   int `mapstructure:"workers"`
	Max       int `mapstructure:"max"`
	QueueSize int `mapstructure:"queue_size"`
}

// ControlConfig configures the control-plane socket (spec.md §6
// "Control-plane inputs").
type ControlConfig struct {
	Socket string `mapstructure:"socket"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig configures structured logging (see internal/acqlog).
type LogConfig struct {
	Level  string       `mapstructure:"level"`
	Format string       `mapstructure:"format"`
	Output OutputConfig `mapstructure:"output"`
}

// OutputConfig names a single log sink.
type OutputConfig struct {
	Type       string `mapstructure:"type"` // console|file
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type configRoot struct {
	Acquisitiond RunConfig `mapstructure:"acquisitiond"`
}

// Load reads a RunConfig from path, applies defaults, and validates it.
// Environment variables prefixed ACQUISITIOND_ override file values (e.g.
// ACQUISITIOND_LOG_LEVEL overrides acquisitiond.log.level). Decoding uses
// UnmarshalExact, so any YAML key with no matching mapstructure tag
// anywhere in RunConfig fails the load instead of being silently dropped
// (spec.md §6: "Unknown fields are rejected").
func Load(path string) (*RunConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.UnmarshalExact(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.Acquisitiond

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("acquisitiond.progression_policy", "auto")
	v.SetDefault("acquisitiond.control.socket", "/var/run/acquisitiond.sock")

	v.SetDefault("acquisitiond.runner.max", 8)
	v.SetDefault("acquisitiond.runner.queue_size", 256)

	v.SetDefault("acquisitiond.qc.focus_score_method", "laplacian_variance")

	v.SetDefault("acquisitiond.metrics.enabled", true)
	v.SetDefault("acquisitiond.metrics.listen", ":9091")
	v.SetDefault("acquisitiond.metrics.path", "/metrics")

	v.SetDefault("acquisitiond.log.level", "info")
	v.SetDefault("acquisitiond.log.format", "json")
	v.SetDefault("acquisitiond.log.output.type", "console")
}

// Validate checks required fields and the enumerated values named in
// spec.md §6 (progression_policy, qc.focus_score_method, log.output.type).
// Unknown YAML keys are rejected earlier, during Load's UnmarshalExact.
func (cfg *RunConfig) Validate() error {
	if cfg.ExperimentPath == "" {
		return fmt.Errorf("experiment_path is required")
	}
	if cfg.TotalTimepoints < 1 {
		return fmt.Errorf("total_timepoints must be >= 1, got %d", cfg.TotalTimepoints)
	}
	switch cfg.ProgressionPolicy {
	case "auto", "manual", "qc_gated":
	default:
		return fmt.Errorf("progression_policy must be auto/manual/qc_gated, got %q", cfg.ProgressionPolicy)
	}
	if len(cfg.Plan.Regions) == 0 {
		return fmt.Errorf("plan.regions must name at least one region")
	}
	for i, r := range cfg.Plan.Regions {
		if r.ID == "" {
			return fmt.Errorf("plan.regions[%d]: id is required", i)
		}
		if len(r.FOVs) < 1 {
			return fmt.Errorf("plan.regions[%d]: fovs must list at least one FOV", i)
		}
		if r.FOVCount != 0 && r.FOVCount != len(r.FOVs) {
			return fmt.Errorf("plan.regions[%d]: fov_count %d does not match len(fovs) %d", i, r.FOVCount, len(r.FOVs))
		}
	}
	if len(cfg.Plan.Channels) == 0 {
		return fmt.Errorf("plan.channels must name at least one channel")
	}

	if cfg.QC.Enabled {
		switch cfg.QC.FocusScoreMethod {
		case "laplacian_variance", "normalized_variance", "gradient_magnitude", "fft_high_freq":
		default:
			return fmt.Errorf("qc.focus_score_method unrecognized: %q", cfg.QC.FocusScoreMethod)
		}
	}

	if cfg.Policy.DetectOutliers != nil {
		if cfg.Policy.DetectOutliers.MetricName == "" {
			return fmt.Errorf("policy.detect_outliers.metric_name is required when set")
		}
		if cfg.Policy.DetectOutliers.StdThreshold <= 0 {
			return fmt.Errorf("policy.detect_outliers.std_threshold must be > 0")
		}
	}

	switch strings.ToLower(cfg.Log.Output.Type) {
	case "", "console", "file":
	default:
		return fmt.Errorf("log.output.type must be console or file, got %q", cfg.Log.Output.Type)
	}

	return nil
}
