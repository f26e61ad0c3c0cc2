// Package config holds the immutable run configuration.
//
// A Config is resolved once at startup (file, then flag overrides) and
// passed by pointer to every component; nothing mutates it after
// Validate. This keeps workers free of hidden shared state.
package config

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// Config is the flat set of parameters for one invocation.
type Config struct {
	InputRoot  string `json:"input_root" yaml:"input_root"`   // dataset root with subject dirs
	OutputRoot string `json:"output_root" yaml:"output_root"` // derivative tree root

	// Subjects filters discovery: "all", "" (smoke-test subject), or a
	// comma/space-separated list of exact subject IDs.
	Subjects  string   `json:"subjects,omitempty" yaml:"subjects,omitempty"`
	Pipelines []string `json:"pipelines,omitempty" yaml:"pipelines,omitempty"`

	// SubjectPattern is the regular expression a directory name must match
	// to count as a subject during discovery, for datasets that do not use
	// the default sub-XXXX convention.
	SubjectPattern string `json:"subject_pattern,omitempty" yaml:"subject_pattern,omitempty"`

	ThreadsPerSubject int     `json:"threads_per_subject" yaml:"threads_per_subject"`
	HighpassHz        float64 `json:"highpass_hz" yaml:"highpass_hz"`
	LowpassHz         float64 `json:"lowpass_hz" yaml:"lowpass_hz"`
	SmoothFWHM        float64 `json:"smooth_fwhm" yaml:"smooth_fwhm"` // mm
	RepetitionTime    float64 `json:"repetition_time" yaml:"repetition_time"` // seconds
	EchoTime          float64 `json:"echo_time" yaml:"echo_time"`             // milliseconds

	Template string `json:"template,omitempty" yaml:"template,omitempty"` // standard-space volume
	Atlas    string `json:"atlas,omitempty" yaml:"atlas,omitempty"`       // ROI label volume

	AnatGlob string `json:"anat_glob,omitempty" yaml:"anat_glob,omitempty"`
	FuncGlob string `json:"func_glob,omitempty" yaml:"func_glob,omitempty"`

	// Flavors are the nuisance-regression configurations applied during
	// FSF processing; each produces its own results tree.
	Flavors []string `json:"flavors,omitempty" yaml:"flavors,omitempty"`

	// ReconTimeoutSec bounds the reconstruction step's wall clock by
	// wrapping its command with the timeout utility. 0 disables.
	ReconTimeoutSec int `json:"recon_timeout_sec,omitempty" yaml:"recon_timeout_sec,omitempty"`

	LicenseFile string `json:"license_file,omitempty" yaml:"license_file,omitempty"`

	SkipExisting bool `json:"skip_existing" yaml:"skip_existing"`
	DryRun       bool `json:"dry_run" yaml:"dry_run"`
	Verbose      bool `json:"verbose" yaml:"verbose"`
}

// Default returns the baseline configuration. InputRoot and OutputRoot
// have no usable defaults and must come from the file or flags.
func Default() Config {
	return Config{
		Pipelines:         []string{"fmri"},
		SubjectPattern:    `^sub-[A-Za-z0-9]+$`,
		ThreadsPerSubject: 4,
		HighpassHz:        0.01,
		LowpassHz:         0.1,
		SmoothFWHM:        6.0,
		RepetitionTime:    2.0,
		EchoTime:          30.0,
		Template:          "MNI152_T1_2mm_brain",
		Atlas:             "HarvardOxford-cort-maxprob-thr25-2mm",
		AnatGlob:          "*T1w*.nii.gz",
		FuncGlob:          "*bold*.nii.gz",
		Flavors:           []string{"nogsr", "gsr"},
		SkipExisting:      true,
	}
}

// Validate rejects configurations that would fail mid-run.
func (c *Config) Validate() error {
	if c.InputRoot == "" {
		return fmt.Errorf("input_root is required")
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("output_root is required")
	}
	if c.ThreadsPerSubject < 1 {
		return fmt.Errorf("threads_per_subject must be >= 1, got %d", c.ThreadsPerSubject)
	}
	if c.RepetitionTime <= 0 {
		return fmt.Errorf("repetition_time must be positive, got %g", c.RepetitionTime)
	}
	if c.SmoothFWHM < 0 {
		return fmt.Errorf("smooth_fwhm must not be negative, got %g", c.SmoothFWHM)
	}
	if c.HighpassHz < 0 || c.LowpassHz < 0 {
		return fmt.Errorf("filter frequencies must not be negative")
	}
	if c.LowpassHz > 0 && c.HighpassHz >= c.LowpassHz {
		return fmt.Errorf("highpass_hz %g must be below lowpass_hz %g", c.HighpassHz, c.LowpassHz)
	}
	if len(c.Flavors) == 0 {
		return fmt.Errorf("at least one regression flavor is required")
	}
	if c.ReconTimeoutSec < 0 {
		return fmt.Errorf("recon_timeout_sec must not be negative, got %d", c.ReconTimeoutSec)
	}
	if c.SubjectPattern != "" {
		if _, err := regexp.Compile(c.SubjectPattern); err != nil {
			return fmt.Errorf("subject_pattern does not compile: %w", err)
		}
	}
	return nil
}

// LogDir is where daily log files and the error ledger live.
func (c *Config) LogDir() string {
	return filepath.Join(c.OutputRoot, "logs")
}

// LedgerPath is the pipe-delimited error ledger file.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.LogDir(), "errors.ledger")
}

// ReportPath is where the final run report is written.
func (c *Config) ReportPath() string {
	return filepath.Join(c.LogDir(), "run-report.txt")
}
