// Package dataset discovers subject/session units of work in a BIDS-like
// dataset tree.
package dataset

import "path/filepath"

// Unit is one unit of work: a subject plus an optional imaging session.
// An empty Session means the subject stores its data directly, with no
// session level in between.
type Unit struct {
	Subject string
	Session string
}

// HasSession reports whether the unit carries a session level.
func (u Unit) HasSession() bool { return u.Session != "" }

// Label is the human-readable identity used in logs and ledger lines,
// "subject" or "subject/session".
func (u Unit) Label() string {
	if u.Session == "" {
		return u.Subject
	}
	return u.Subject + "/" + u.Session
}

// Key is a deterministic file-name-safe identity, "subject" or
// "subject_session". Used for per-unit artifact names.
func (u Unit) Key() string {
	if u.Session == "" {
		return u.Subject
	}
	return u.Subject + "_" + u.Session
}

// Dir returns the unit's directory under root.
func (u Unit) Dir(root string) string {
	if u.Session == "" {
		return filepath.Join(root, u.Subject)
	}
	return filepath.Join(root, u.Subject, u.Session)
}
