package fmri

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"neuropipe/internal/command"
	"neuropipe/internal/config"
	"neuropipe/internal/dataset"
	"neuropipe/internal/pipeline"
)

// fwhmToSigma converts a Gaussian kernel FWHM in mm to the sigma the
// smoothing tool expects.
const fwhmToSigma = 2.3548

// stepSet builds the fmri commands from the run configuration. All
// builders are pure over (cfg, unit); the shell resolves input globs at
// execution time.
type stepSet struct {
	cfg *config.Config
	ex  command.Execer
}

// Register appends the fmri steps to the registry in execution order.
func Register(reg *pipeline.Registry, cfg *config.Config, ex command.Execer) error {
	s := stepSet{cfg: cfg, ex: ex}

	type def struct {
		id, label string
		kind      pipeline.Kind
		build     pipeline.CommandBuilder
		run       pipeline.Routine
		probe     pipeline.Probe
	}
	defs := []def{
		{"structural_preproc", "Structural preprocessing", pipeline.DirectCommand,
			s.structuralPreproc, nil, pipeline.FileExists(s.structuralOutputs)},
		{"recon_all", "Surface reconstruction", pipeline.DirectCommand,
			s.reconAll, nil, pipeline.FileExists(s.reconOutputs)},
		{"anatomical", "Anatomical preprocessing", pipeline.DirectCommand,
			s.anatomical, nil, s.anatomicalProbe()},
		{"functional", "Functional cleanup", pipeline.DirectCommand,
			s.functional, nil, pipeline.FileExists(s.functionalOutputs)},
		{"registration", "Spatial registration", pipeline.DirectCommand,
			s.registration, nil, pipeline.FileExists(s.registrationOutputs)},
		{"segmentation", "Tissue segmentation", pipeline.DirectCommand,
			s.segmentation, nil, pipeline.MaskProbe(ex, s.segmentationMasks)},
		{"fsf_processing", "Nuisance regression", pipeline.CustomRoutine,
			nil, s.fsfRoutine, pipeline.FileExists(s.fsfOutputs)},
		{"timeseries", "Atlas time-series extraction", pipeline.DirectCommand,
			s.timeseries, nil, pipeline.FileExists(s.timeseriesOutputs)},
	}
	for _, d := range defs {
		if err := reg.Register(PipelineName, d.id, d.label, d.kind, d.build, d.run, d.probe); err != nil {
			return fmt.Errorf("register fmri steps: %w", err)
		}
	}
	return nil
}

func (s stepSet) layout(u dataset.Unit) layout { return layout{cfg: s.cfg, u: u} }

// --- command builders ---

func (s stepSet) structuralPreproc(u dataset.Unit) string {
	l := s.layout(u)
	return fmt.Sprintf(
		`t1=$(ls %s | head -n 1) && fslreorient2std "$t1" %s`,
		filepath.Join(l.inAnatDir(), s.cfg.AnatGlob), l.reorientedT1())
}

func (s stepSet) reconAll(u dataset.Unit) string {
	l := s.layout(u)
	cmd := fmt.Sprintf("recon-all -sd %s -s %s -i %s -all -openmp %d",
		l.freesurferDir(), u.Key(), l.reorientedT1(), s.cfg.ThreadsPerSubject)
	// Reconstruction is the one step allowed a wall-clock bound; the
	// orchestrator has no general timeout facility.
	if s.cfg.ReconTimeoutSec > 0 {
		cmd = fmt.Sprintf("timeout %ds %s", s.cfg.ReconTimeoutSec, cmd)
	}
	return cmd
}

func (s stepSet) anatomical(u dataset.Unit) string {
	l := s.layout(u)
	return fmt.Sprintf("bet %s %s -R -f 0.3 -m", l.reorientedT1(), l.brain())
}

func (s stepSet) functional(u dataset.Unit) string {
	l := s.layout(u)
	sigma := s.cfg.SmoothFWHM / fwhmToSigma
	return fmt.Sprintf(
		`bold=$(ls %s | head -n 1) && mcflirt -in "$bold" -out %s -plots && fslmaths %s -kernel gauss %.4f -fmean%s %s`,
		filepath.Join(l.inFuncDir(), s.cfg.FuncGlob),
		strings.TrimSuffix(l.boldMC(), ".nii.gz"),
		l.boldMC(), sigma, s.bandpassArgs(), l.boldProc())
}

// bandpassArgs renders the temporal-filter stage appended to the
// functional cleanup. fslmaths -bptf takes filter widths as Gaussian
// sigmas in volumes, so the configured cutoff frequencies are converted
// via sigma = 1 / (2 * f * TR); -1 disables that side. Both cutoffs at
// zero means no filtering and no -bptf stage at all.
func (s stepSet) bandpassArgs() string {
	if s.cfg.HighpassHz <= 0 && s.cfg.LowpassHz <= 0 {
		return ""
	}
	hp, lp := -1.0, -1.0
	if s.cfg.HighpassHz > 0 {
		hp = 1.0 / (2 * s.cfg.HighpassHz * s.cfg.RepetitionTime)
	}
	if s.cfg.LowpassHz > 0 {
		lp = 1.0 / (2 * s.cfg.LowpassHz * s.cfg.RepetitionTime)
	}
	return fmt.Sprintf(" -bptf %.4f %.4f", hp, lp)
}

func (s stepSet) registration(u dataset.Unit) string {
	l := s.layout(u)
	template := filepath.Join("${FSLDIR}", "data", "standard", s.cfg.Template+".nii.gz")
	f2a := filepath.Join(l.regDir(), "func2anat.mat")
	a2s := filepath.Join(l.regDir(), "anat2std.mat")
	return strings.Join([]string{
		fmt.Sprintf("fslroi %s %s 0 1", l.boldMC(), l.exampleFunc()),
		fmt.Sprintf("flirt -in %s -ref %s -omat %s -dof 6", l.exampleFunc(), l.brain(), f2a),
		fmt.Sprintf("flirt -in %s -ref %s -omat %s -dof 12", l.brain(), template, a2s),
		fmt.Sprintf("convert_xfm -omat %s -concat %s %s", l.func2Std(), a2s, f2a),
	}, " && ")
}

func (s stepSet) segmentation(u dataset.Unit) string {
	l := s.layout(u)
	fastBase := filepath.Join(l.segDir(), "fast")
	return strings.Join([]string{
		fmt.Sprintf("fast -t 1 -n 3 -o %s %s", fastBase, l.brain()),
		fmt.Sprintf("fslmaths %s_pve_0 -thr 0.9 -bin %s", fastBase, l.csfMask()),
		fmt.Sprintf("fslmaths %s_pve_2 -thr 0.9 -bin %s", fastBase, l.wmMask()),
	}, " && ")
}

// regressionCommand builds one flavor's nuisance regression: extract the
// tissue regressors, assemble the design, regress them out. The gsr
// flavor adds the global signal as a regressor.
func (s stepSet) regressionCommand(u dataset.Unit, flavor string) string {
	l := s.layout(u)
	dir := l.resultsDir(flavor)
	csf := filepath.Join(dir, "csf.txt")
	wm := filepath.Join(dir, "wm.txt")
	design := filepath.Join(dir, "nuisance.mat")

	parts := []string{
		fmt.Sprintf("fslmeants -i %s -m %s -o %s", l.boldProc(), l.csfMask(), csf),
		fmt.Sprintf("fslmeants -i %s -m %s -o %s", l.boldProc(), l.wmMask(), wm),
	}
	cols := []string{csf, wm}
	if flavor == "gsr" {
		global := filepath.Join(dir, "global.txt")
		parts = append(parts,
			fmt.Sprintf("fslmeants -i %s -m %s -o %s", l.boldProc(), l.brainMask(), global))
		cols = append(cols, global)
	}
	parts = append(parts,
		fmt.Sprintf("paste %s > %s", strings.Join(cols, " "), design),
		fmt.Sprintf("fsl_glm -i %s -d %s --out_res=%s", l.boldProc(), design, l.cleaned(flavor)))
	return strings.Join(parts, " && ")
}

func (s stepSet) timeseries(u dataset.Unit) string {
	l := s.layout(u)
	atlas := filepath.Join("${FSLDIR}", "data", "atlases", s.cfg.Atlas+".nii.gz")
	parts := make([]string, 0, len(s.cfg.Flavors))
	for _, flavor := range s.cfg.Flavors {
		parts = append(parts, fmt.Sprintf("fslmeants -i %s --label=%s -o %s",
			l.cleaned(flavor), atlas, l.timeseriesFile(flavor)))
	}
	return strings.Join(parts, " && ")
}

// --- probes ---

func (s stepSet) structuralOutputs(u dataset.Unit) []string {
	return []string{s.layout(u).reorientedT1()}
}

func (s stepSet) reconOutputs(u dataset.Unit) []string {
	surf := filepath.Join(s.layout(u).freesurferDir(), u.Key(), "surf")
	return []string{filepath.Join(surf, "lh.white"), filepath.Join(surf, "rh.white")}
}

// anatomicalProbe requires the stripped brain plus a semantically valid
// brain mask, not just a present file.
func (s stepSet) anatomicalProbe() pipeline.Probe {
	files := pipeline.FileExists(func(u dataset.Unit) []string {
		return []string{s.layout(u).brain()}
	})
	mask := pipeline.MaskProbe(s.ex, func(u dataset.Unit) []string {
		return []string{s.layout(u).brainMask()}
	})
	return func(ctx context.Context, u dataset.Unit) bool {
		return files(ctx, u) && mask(ctx, u)
	}
}

func (s stepSet) functionalOutputs(u dataset.Unit) []string {
	l := s.layout(u)
	return []string{l.boldMC(), l.boldProc()}
}

func (s stepSet) registrationOutputs(u dataset.Unit) []string {
	return []string{s.layout(u).func2Std()}
}

func (s stepSet) segmentationMasks(u dataset.Unit) []string {
	l := s.layout(u)
	return []string{l.csfMask(), l.wmMask()}
}

func (s stepSet) fsfOutputs(u dataset.Unit) []string {
	l := s.layout(u)
	out := make([]string, 0, len(s.cfg.Flavors))
	for _, flavor := range s.cfg.Flavors {
		out = append(out, l.cleaned(flavor))
	}
	return out
}

func (s stepSet) timeseriesOutputs(u dataset.Unit) []string {
	l := s.layout(u)
	out := make([]string, 0, len(s.cfg.Flavors))
	for _, flavor := range s.cfg.Flavors {
		out = append(out, l.timeseriesFile(flavor))
	}
	return out
}
