package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{
		filepath.Join(root, "sub-A00086238", "anat"),
		filepath.Join(root, "sub-A00086238", "func"),
		filepath.Join(root, "sub-B11111111", "ses-BAS1", "anat"),
	} {
		if err := os.MkdirAll(d, 0775); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestDiscoverCommand(t *testing.T) {
	root := writeDataset(t)

	out, err := execute(t, "discover", "--input", root, "--subjects", "all")
	if err != nil {
		t.Fatalf("discover: %v\n%s", err, out)
	}
	for _, want := range []string{"sub-A00086238", "sub-B11111111/ses-BAS1", "2 unit(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommand_DryRunLeavesOutputUntouched(t *testing.T) {
	in := writeDataset(t)
	outRoot := t.TempDir()

	out, err := execute(t, "run", "--input", in, "--output", outRoot, "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "RESULT: PASS") {
		t.Errorf("report missing pass result:\n%s", out)
	}
	entries, err := os.ReadDir(outRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run created artifacts under output root: %v", entries)
	}
}

func TestRunCommand_PreflightBlocksRealRun(t *testing.T) {
	in := writeDataset(t)
	t.Setenv("FREESURFER_HOME", "")
	t.Setenv("FSLDIR", "")

	out, err := execute(t, "run", "--input", in, "--output", t.TempDir(), "--dry-run=false")
	if err == nil {
		t.Fatalf("run without tooling should fail preflight:\n%s", out)
	}
	if !strings.Contains(err.Error(), "preflight failed") {
		t.Errorf("error = %v, want preflight failure", err)
	}
}

func TestRunCommand_RejectsInvalidConfig(t *testing.T) {
	// flag values persist across Execute calls, so clear input explicitly
	_, err := execute(t, "run", "--input=", "--output", t.TempDir(), "--dry-run")
	if err == nil || !strings.Contains(err.Error(), "input_root") {
		t.Errorf("error = %v, want missing input_root", err)
	}
}
