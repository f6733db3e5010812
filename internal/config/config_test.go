package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

const minimalPlan = `
  plan:
    regions:
      - id: "A"
        fovs:
          - { x_mm: 0, y_mm: 0, z_mm: 0 }
          - { x_mm: 1, y_mm: 0, z_mm: 0 }
    channels: ["DAPI"]
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 10
  progression_policy: "auto"
`+minimalPlan))
	require.NoError(t, err)

	assert.Equal(t, "/data/exp1", cfg.ExperimentPath)
	assert.Equal(t, 10, cfg.TotalTimepoints)
	require.Len(t, cfg.Plan.Regions, 1)
	assert.Equal(t, "A", cfg.Plan.Regions[0].ID)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 1
`+minimalPlan))
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.ProgressionPolicy)
	assert.Equal(t, "/var/run/acquisitiond.sock", cfg.Control.Socket)
	assert.Equal(t, 8, cfg.Runner.Max)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ACQUISITIOND_LOG_LEVEL", "debug")

	cfg, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 1
  log:
    level: "info"
`+minimalPlan))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level, "env override")
}

func TestLoadMissingExperimentPath(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
acquisitiond:
  total_timepoints: 1
`+minimalPlan))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "experiment_path")
}

func TestLoadInvalidProgressionPolicy(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 1
  progression_policy: "sometimes"
`+minimalPlan))
	assert.Error(t, err)
}

func TestLoadRegionFOVCountMismatch(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 1
  plan:
    regions:
      - id: "A"
        fov_count: 3
        fovs:
          - { x_mm: 0, y_mm: 0, z_mm: 0 }
    channels: ["DAPI"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fov_count")
}

func TestLoadUnknownFocusScoreMethod(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 1
  qc:
    enabled: true
    focus_score_method: "contrast_ratio"
`+minimalPlan))
	assert.Error(t, err)
}

func TestLoadUnknownFieldRejected(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 1
  bogus_field: "nope"
`+minimalPlan))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestLoadOutlierRuleRequiresMetricName(t *testing.T) {
	_, err := Load(writeTmpConfig(t, `
acquisitiond:
  experiment_path: "/data/exp1"
  total_timepoints: 1
  policy:
    enabled: true
    detect_outliers:
      std_threshold: 2.0
`+minimalPlan))
	assert.Error(t, err)
}
