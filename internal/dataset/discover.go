package dataset

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"neuropipe/internal/logging"
)

// DefaultSmokeSubject is processed when no subject filter is given, so an
// unqualified invocation exercises the full pipeline on one known subject
// instead of the whole dataset.
const DefaultSmokeSubject = "sub-A00086238"

// anatDirName marks a directory level as processable: a subject (or one
// of its sessions) is accepted only if it contains this subdirectory.
const anatDirName = "anat"

// defaultSubjectPattern is the usual naming convention for subject
// directories, used when the configuration does not override it.
var defaultSubjectPattern = regexp.MustCompile(`^sub-[A-Za-z0-9]+$`)

// Filter selects which discovered subjects become units of work.
type Filter struct {
	all bool
	ids map[string]struct{}
}

// ParseFilter interprets the target-subject setting: "all" accepts every
// subject, empty defaults to DefaultSmokeSubject, anything else is a
// comma/space-separated allow-list matched by exact subject ID.
func ParseFilter(s string) Filter {
	s = strings.TrimSpace(s)
	if s == "all" {
		return Filter{all: true}
	}
	if s == "" {
		s = DefaultSmokeSubject
	}
	ids := make(map[string]struct{})
	for _, id := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return Filter{ids: ids}
}

// Match reports whether the subject passes the filter.
func (f Filter) Match(subject string) bool {
	if f.all {
		return true
	}
	_, ok := f.ids[subject]
	return ok
}

// Discover walks one level of subject directories under root and returns
// the units of work, deterministically ordered. A directory counts as a
// subject when its name matches pattern (nil = the default sub-XXXX
// convention). A subject with a direct anat/ subdirectory is a
// session-less unit; otherwise each immediate subdirectory that itself
// contains anat/ becomes one session unit. Candidate sessions without
// anat/ are skipped.
func Discover(root string, f Filter, pattern *regexp.Regexp) ([]Unit, error) {
	if pattern == nil {
		pattern = defaultSubjectPattern
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset root: %w", err)
	}

	logger := logging.New("discover")

	var units []Unit
	for _, e := range entries {
		if !e.IsDir() || !pattern.MatchString(e.Name()) {
			continue
		}
		subject := e.Name()
		if !f.Match(subject) {
			continue
		}

		subjDir := Unit{Subject: subject}.Dir(root)
		if hasDir(subjDir, anatDirName) {
			units = append(units, Unit{Subject: subject})
			continue
		}

		sessions, err := os.ReadDir(subjDir)
		if err != nil {
			return nil, fmt.Errorf("read subject dir %s: %w", subject, err)
		}
		found := false
		for _, s := range sessions {
			if !s.IsDir() {
				continue
			}
			u := Unit{Subject: subject, Session: s.Name()}
			if !hasDir(u.Dir(root), anatDirName) {
				logger.Debug("skipping session without anatomical data",
					"subject", subject, "session", s.Name())
				continue
			}
			units = append(units, u)
			found = true
		}
		if !found {
			logger.Warn("subject has no processable anatomical data", "subject", subject)
		}
	}
	return units, nil
}

func hasDir(parent, name string) bool {
	info, err := os.Stat(parent + string(os.PathSeparator) + name)
	return err == nil && info.IsDir()
}
