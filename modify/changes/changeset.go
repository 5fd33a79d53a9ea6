// Package changes records the before and after state of
// the requested files and decides whether a run has
// anything worth publishing.
package changes

import (
	"fmt"
	"strings"
)

// Status is the per-file classification.
type Status int

const (
	// Unchanged means before and after are identical.
	Unchanged Status = iota
	// Modified means the file was created or edited.
	Modified
	// Deleted means an existing file was removed.
	Deleted
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// FileRecord is the before/after pair of one file.
type FileRecord struct {
	Path   string
	Before Content
	After  Content
}

// Status classifies the record.
func (r FileRecord) Status() Status {
	switch {
	case r.Before.Equal(r.After):
		return Unchanged
	case !r.After.Exists() && r.Before.Exists():
		return Deleted
	default:
		return Modified
	}
}

// WhitespaceOnly reports whether a modified record only
// differs in whitespace.
func (r FileRecord) WhitespaceOnly() bool {
	return r.Status() == Modified &&
		HasWhitespaceOnlyChanges(
			r.Before.String(), r.After.String(),
		)
}

// Options tunes HasChanges.
type Options struct {
	// IgnoreWhitespaceOnly treats whitespace-only
	// modifications as unchanged.
	IgnoreWhitespaceOnly bool
	// Force reports changes even when nothing differs.
	Force bool
}

// ChangeSet holds one record per requested path, in
// request order.
type ChangeSet struct {
	records []FileRecord
	index   map[string]int
}

// NewChangeSet creates a change set for paths. Paths
// must be non-empty and unique.
func NewChangeSet(paths []string) (*ChangeSet, error) {
	const errCtx = "creating change set"

	if len(paths) == 0 {
		return nil, fmt.Errorf(
			"%s: no files requested", errCtx,
		)
	}

	cs := &ChangeSet{
		records: make([]FileRecord, 0, len(paths)),
		index:   make(map[string]int, len(paths)),
	}

	for _, path := range paths {
		if path == "" {
			return nil, fmt.Errorf(
				"%s: empty path", errCtx,
			)
		}

		if _, dup := cs.index[path]; dup {
			return nil, fmt.Errorf(
				"%s: duplicate path %s", errCtx, path,
			)
		}

		cs.index[path] = len(cs.records)
		cs.records = append(cs.records, FileRecord{Path: path})
	}

	return cs, nil
}

// Paths returns the requested paths in order.
func (cs *ChangeSet) Paths() []string {
	out := make([]string, len(cs.records))
	for i, r := range cs.records {
		out[i] = r.Path
	}

	return out
}

// Records returns a copy of the records in order.
func (cs *ChangeSet) Records() []FileRecord {
	return append([]FileRecord(nil), cs.records...)
}

// Len returns the number of records.
func (cs *ChangeSet) Len() int {
	return len(cs.records)
}

// SetBefore records the fetched content of path.
func (cs *ChangeSet) SetBefore(path string, c Content) error {
	i, ok := cs.index[path]
	if !ok {
		return fmt.Errorf("unknown path %s", path)
	}

	cs.records[i].Before = c

	return nil
}

// SetAfter records the post-mutation content of path.
func (cs *ChangeSet) SetAfter(path string, c Content) error {
	i, ok := cs.index[path]
	if !ok {
		return fmt.Errorf("unknown path %s", path)
	}

	cs.records[i].After = c

	return nil
}

// After returns the final state keyed by path.
func (cs *ChangeSet) After() map[string]Content {
	out := make(map[string]Content, len(cs.records))
	for _, r := range cs.records {
		out[r.Path] = r.After
	}

	return out
}

// WithStatus returns the paths having status s, in
// order.
func (cs *ChangeSet) WithStatus(s Status) []string {
	var out []string

	for _, r := range cs.records {
		if r.Status() == s {
			out = append(out, r.Path)
		}
	}

	return out
}

// HasChanges reports whether the run has something to
// publish.
func (cs *ChangeSet) HasChanges(opts Options) bool {
	if opts.Force {
		return true
	}

	for _, r := range cs.records {
		switch r.Status() {
		case Deleted:
			return true
		case Modified:
			if opts.IgnoreWhitespaceOnly && r.WhitespaceOnly() {
				continue
			}

			return true
		default:
			continue
		}
	}

	return false
}

// WhitespaceOnly reports whether the run contains
// modifications and every one of them is whitespace
// only. Deletions disqualify the run.
func (cs *ChangeSet) WhitespaceOnly() bool {
	modified := 0

	for _, r := range cs.records {
		switch r.Status() {
		case Deleted:
			return false
		case Modified:
			if !r.WhitespaceOnly() {
				return false
			}

			modified++
		default:
			continue
		}
	}

	return modified > 0
}

var whitespace = strings.NewReplacer(
	"\n", "", "\r", "", " ", "", "\t", "",
)

// HasWhitespaceOnlyChanges reports whether a and b are
// equal once newlines, carriage returns, spaces and
// tabs are removed.
func HasWhitespaceOnlyChanges(a, b string) bool {
	return whitespace.Replace(a) == whitespace.Replace(b)
}
