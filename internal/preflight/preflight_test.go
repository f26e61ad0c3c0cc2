package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neuropipe/internal/config"
)

func readyChecker(env map[string]string) *Checker {
	return &Checker{
		LookPath: func(file string) (string, error) { return "/usr/bin/" + file, nil },
		Getenv:   func(key string) string { return env[key] },
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.InputRoot = t.TempDir()
	cfg.OutputRoot = t.TempDir()
	return cfg
}

func writeLicense(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "license.txt")
	if err := os.WriteFile(path, []byte("user@example.org\n12345\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheck_ReadyEnvironment(t *testing.T) {
	cfg := testConfig(t)
	fsHome := t.TempDir()
	writeLicense(t, fsHome)
	c := readyChecker(map[string]string{"FREESURFER_HOME": fsHome, "FSLDIR": t.TempDir()})

	if problems := c.Check(&cfg); len(problems) != 0 {
		t.Errorf("ready environment reported problems: %v", problems)
	}
}

func TestCheck_ExplicitLicensePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.LicenseFile = writeLicense(t, t.TempDir())
	c := readyChecker(map[string]string{"FREESURFER_HOME": t.TempDir(), "FSLDIR": t.TempDir()})

	// FREESURFER_HOME has no license.txt, but the explicit path wins.
	if problems := c.Check(&cfg); len(problems) != 0 {
		t.Errorf("explicit license should satisfy the check: %v", problems)
	}
}

func TestCheck_EnvRootMustBeDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.LicenseFile = writeLicense(t, t.TempDir())
	c := readyChecker(map[string]string{
		"FREESURFER_HOME": filepath.Join(t.TempDir(), "missing"),
		"FSLDIR":          t.TempDir(),
	})

	problems := c.Check(&cfg)
	if len(problems) != 1 || !strings.Contains(problems[0], "FREESURFER_HOME") {
		t.Errorf("problems = %v, want one FREESURFER_HOME directory problem", problems)
	}
}

func TestCheck_CollectsEveryProblem(t *testing.T) {
	cfg := testConfig(t)
	cfg.InputRoot = filepath.Join(t.TempDir(), "does-not-exist")
	missing := map[string]bool{"bet": true, "fsl_glm": true}
	c := &Checker{
		LookPath: func(file string) (string, error) {
			if missing[file] {
				return "", fmt.Errorf("%s: not found", file)
			}
			return "/usr/bin/" + file, nil
		},
		Getenv: func(string) string { return "" },
	}

	problems := c.Check(&cfg)
	// input root + 2 env vars + license + 2 tools
	if len(problems) != 6 {
		t.Fatalf("found %d problems, want 6: %v", len(problems), problems)
	}
	joined := strings.Join(problems, "\n")
	for _, want := range []string{"input root", "FREESURFER_HOME", "FSLDIR", "license", "bet", "fsl_glm"} {
		if !strings.Contains(joined, want) {
			t.Errorf("problems missing %q: %v", want, problems)
		}
	}
}
