package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"neuropipe/internal/command"
	"neuropipe/internal/dataset"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	present := writeFile(t, filepath.Join(dir, "brain.nii.gz"), "data")
	empty := writeFile(t, filepath.Join(dir, "empty.nii.gz"), "")

	probe := FileExists(func(dataset.Unit) []string { return []string{present} })
	if !probe(context.Background(), testUnit) {
		t.Error("probe false for existing non-empty file")
	}

	probe = FileExists(func(dataset.Unit) []string { return []string{present, empty} })
	if probe(context.Background(), testUnit) {
		t.Error("probe true despite empty file")
	}

	probe = FileExists(func(dataset.Unit) []string {
		return []string{filepath.Join(dir, "missing.nii.gz")}
	})
	if probe(context.Background(), testUnit) {
		t.Error("probe true despite missing file")
	}
}

func TestMaskValid_FailClosed(t *testing.T) {
	dir := t.TempDir()
	mask := writeFile(t, filepath.Join(dir, "mask.nii.gz"), "binary-ish")
	ctx := context.Background()

	cases := []struct {
		name    string
		path    string
		respond func(string) (command.Result, error)
		want    bool
	}{
		{
			name: "missing file",
			path: filepath.Join(dir, "absent.nii.gz"),
			want: false,
		},
		{
			name: "empty file",
			path: writeFile(t, filepath.Join(dir, "empty.nii.gz"), ""),
			want: false,
		},
		{
			name: "query tool errors",
			path: mask,
			respond: func(string) (command.Result, error) {
				return command.Result{ExitCode: -1}, fmt.Errorf("fslstats: not found")
			},
			want: false,
		},
		{
			name: "query nonzero exit",
			path: mask,
			respond: func(string) (command.Result, error) {
				return command.Result{ExitCode: 1, Output: []byte("corrupt volume")}, nil
			},
			want: false,
		},
		{
			name: "zero voxels",
			path: mask,
			respond: func(string) (command.Result, error) {
				return command.Result{ExitCode: 0, Output: []byte("0 0.000000\n")}, nil
			},
			want: false,
		},
		{
			name: "unparsable output",
			path: mask,
			respond: func(string) (command.Result, error) {
				return command.Result{ExitCode: 0, Output: []byte("n/a\n")}, nil
			},
			want: false,
		},
		{
			name: "valid mask",
			path: mask,
			respond: func(string) (command.Result, error) {
				return command.Result{ExitCode: 0, Output: []byte("15230 121840.000000\n")}, nil
			},
			want: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex := &fakeExec{respond: tc.respond}
			if got := MaskValid(ctx, ex, tc.path); got != tc.want {
				t.Errorf("MaskValid = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMaskProbe_AllMasksMustPass(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "csf.nii.gz"), "x")
	missing := filepath.Join(dir, "wm.nii.gz")

	ex := &fakeExec{respond: func(string) (command.Result, error) {
		return command.Result{ExitCode: 0, Output: []byte("100 800.0\n")}, nil
	}}
	probe := MaskProbe(ex, func(dataset.Unit) []string { return []string{good, missing} })
	if probe(context.Background(), testUnit) {
		t.Error("probe true despite one missing mask")
	}

	probe = MaskProbe(ex, func(dataset.Unit) []string { return []string{good} })
	if !probe(context.Background(), testUnit) {
		t.Error("probe false for valid mask set")
	}
}
