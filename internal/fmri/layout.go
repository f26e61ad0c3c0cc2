// Package fmri defines the resting-state fMRI pipeline: the step set,
// the command builders for the wrapped external tools, and the output
// probes over the derivative tree.
package fmri

import (
	"fmt"
	"os"
	"path/filepath"

	"neuropipe/internal/config"
	"neuropipe/internal/dataset"
)

// PipelineName is the registry name of this pipeline.
const PipelineName = "fmri"

// layout computes one unit's paths: raw inputs under the input root and
// the derivative tree under the output root.
//
// Derivative tree per unit:
//
//	anat/                    structural outputs
//	func/                    functional outputs
//	func/reg_dir/            registration matrices/volumes
//	func/seg/                tissue segmentation and masks
//	results/<flavor>/        per-flavor regression outputs
//	results/<flavor>/timeseries/
type layout struct {
	cfg *config.Config
	u   dataset.Unit
}

func (l layout) inAnatDir() string { return filepath.Join(l.u.Dir(l.cfg.InputRoot), "anat") }
func (l layout) inFuncDir() string { return filepath.Join(l.u.Dir(l.cfg.InputRoot), "func") }

func (l layout) outDir() string  { return l.u.Dir(l.cfg.OutputRoot) }
func (l layout) anatDir() string { return filepath.Join(l.outDir(), "anat") }
func (l layout) funcDir() string { return filepath.Join(l.outDir(), "func") }
func (l layout) regDir() string  { return filepath.Join(l.funcDir(), "reg_dir") }
func (l layout) segDir() string  { return filepath.Join(l.funcDir(), "seg") }

func (l layout) resultsDir(flavor string) string {
	return filepath.Join(l.outDir(), "results", flavor)
}

func (l layout) timeseriesDir(flavor string) string {
	return filepath.Join(l.resultsDir(flavor), "timeseries")
}

// freesurferDir is the shared FreeSurfer subjects directory; recon-all
// keys its output by the unit key.
func (l layout) freesurferDir() string {
	return filepath.Join(l.cfg.OutputRoot, "freesurfer")
}

func (l layout) reorientedT1() string { return filepath.Join(l.anatDir(), "T1_reo.nii.gz") }
func (l layout) brain() string        { return filepath.Join(l.anatDir(), "brain.nii.gz") }
func (l layout) brainMask() string    { return filepath.Join(l.anatDir(), "brain_mask.nii.gz") }
func (l layout) boldMC() string       { return filepath.Join(l.funcDir(), "bold_mc.nii.gz") }
func (l layout) boldProc() string     { return filepath.Join(l.funcDir(), "bold_proc.nii.gz") }
func (l layout) exampleFunc() string  { return filepath.Join(l.funcDir(), "example_func.nii.gz") }
func (l layout) func2Std() string     { return filepath.Join(l.regDir(), "func2std.mat") }
func (l layout) csfMask() string      { return filepath.Join(l.segDir(), "csf_mask.nii.gz") }
func (l layout) wmMask() string       { return filepath.Join(l.segDir(), "wm_mask.nii.gz") }

func (l layout) cleaned(flavor string) string {
	return filepath.Join(l.resultsDir(flavor), "cleaned.nii.gz")
}

// timeseriesFile names the flavor-specific extraction deterministically
// from subject, optional session, atlas, and flavor. This filename is the
// completion contract consumed downstream.
func (l layout) timeseriesFile(flavor string) string {
	name := fmt.Sprintf("%s_%s_%s.1D", l.u.Key(), l.cfg.Atlas, flavor)
	return filepath.Join(l.timeseriesDir(flavor), name)
}

// Prepare returns the scaffolding function for this pipeline: the unit's
// derivative subtree with group-writable directories. Idempotent.
func Prepare(cfg *config.Config) func(u dataset.Unit) error {
	return func(u dataset.Unit) error {
		l := layout{cfg: cfg, u: u}
		dirs := []string{l.anatDir(), l.funcDir(), l.regDir(), l.segDir()}
		for _, flavor := range cfg.Flavors {
			dirs = append(dirs, l.timeseriesDir(flavor))
		}
		for _, d := range dirs {
			if err := os.MkdirAll(d, 0775); err != nil {
				return fmt.Errorf("scaffold %s: %w", d, err)
			}
		}
		return nil
	}
}
