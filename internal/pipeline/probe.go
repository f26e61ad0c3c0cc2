package pipeline

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"neuropipe/internal/command"
	"neuropipe/internal/dataset"
)

// FileExists is a probe helper: true iff every path produced by paths(u)
// exists and is non-empty.
func FileExists(paths func(u dataset.Unit) []string) Probe {
	return func(_ context.Context, u dataset.Unit) bool {
		for _, p := range paths(u) {
			info, err := os.Stat(p)
			if err != nil || info.IsDir() || info.Size() == 0 {
				return false
			}
		}
		return true
	}
}

// MaskValid reports whether path holds a usable binary mask: the file is
// non-empty and a voxel-count query reports a nonzero count of "on"
// voxels. Any error along the way (missing file, query tool failure,
// unparsable output) counts as invalid — a false positive here would
// silently corrupt a resumed run.
func MaskValid(ctx context.Context, ex command.Execer, path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false
	}

	res, err := ex.Exec(ctx, fmt.Sprintf("fslstats %s -V", path))
	if err != nil || res.ExitCode != 0 {
		return false
	}
	// fslstats -V prints "<voxels> <volume-mm3>".
	fields := strings.Fields(string(res.Output))
	if len(fields) < 1 {
		return false
	}
	voxels, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return false
	}
	return voxels > 0
}

// MaskProbe wraps MaskValid over the mask paths produced for the unit.
func MaskProbe(ex command.Execer, paths func(u dataset.Unit) []string) Probe {
	return func(ctx context.Context, u dataset.Unit) bool {
		for _, p := range paths(u) {
			if !MaskValid(ctx, ex, p) {
				return false
			}
		}
		return true
	}
}
