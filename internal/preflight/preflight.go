// Package preflight verifies the external tooling a run depends on
// before any unit is scheduled: the imaging suites on PATH, their
// environment roots, the license, and the input tree.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"neuropipe/internal/config"
	"neuropipe/internal/logging"
)

// RequiredTools are the external binaries the pipeline steps invoke.
var RequiredTools = []string{
	"recon-all",
	"bet",
	"flirt",
	"mcflirt",
	"fast",
	"fslmaths",
	"fslstats",
	"fslmeants",
	"fsl_glm",
	"fslroi",
	"convert_xfm",
}

// requiredEnv are the environment roots the tool suites need.
var requiredEnv = []string{"FREESURFER_HOME", "FSLDIR"}

// Checker runs the preflight checks. The lookup functions are fields so
// tests can run without the imaging suites installed.
type Checker struct {
	LookPath func(file string) (string, error)
	Getenv   func(key string) string
}

// New returns a checker backed by the real PATH and environment.
func New() *Checker {
	return &Checker{LookPath: exec.LookPath, Getenv: os.Getenv}
}

// Check returns every problem found, empty when the environment is
// ready. All checks run so one missing tool does not hide the rest.
func (c *Checker) Check(cfg *config.Config) []string {
	log := logging.New("preflight")
	var problems []string

	if fi, err := os.Stat(cfg.InputRoot); err != nil || !fi.IsDir() {
		problems = append(problems, fmt.Sprintf("input root is not a directory: %s", cfg.InputRoot))
	}

	for _, key := range requiredEnv {
		dir := c.Getenv(key)
		if dir == "" {
			problems = append(problems, fmt.Sprintf("environment variable %s is not set", key))
			continue
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			problems = append(problems, fmt.Sprintf("%s does not point to a directory: %s", key, dir))
		}
	}

	license := cfg.LicenseFile
	if license == "" && c.Getenv("FREESURFER_HOME") != "" {
		license = filepath.Join(c.Getenv("FREESURFER_HOME"), "license.txt")
	}
	if license == "" {
		problems = append(problems, "no license file configured and FREESURFER_HOME is unset")
	} else if fi, err := os.Stat(license); err != nil || fi.IsDir() {
		problems = append(problems, fmt.Sprintf("license file not readable: %s", license))
	}

	for _, tool := range RequiredTools {
		if _, err := c.LookPath(tool); err != nil {
			problems = append(problems, fmt.Sprintf("required tool not on PATH: %s", tool))
		}
	}

	if len(problems) == 0 {
		log.Info("preflight passed", "tools", len(RequiredTools))
	} else {
		log.Error("preflight failed", "problems", len(problems))
	}
	return problems
}
