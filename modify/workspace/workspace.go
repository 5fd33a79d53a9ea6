// Package workspace manages the temporary directory the
// mutator runs in. It is seeded from the remote, handed to
// the mutator, read back, and removed.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/byte4ever/repo_modifier/modify/changes"
	"github.com/byte4ever/repo_modifier/modify/git"
)

// MissingFileError is returned by Fetch when a requested
// file does not exist at the ref and missing files are not
// tolerated.
type MissingFileError struct {
	Path string
	Ref  string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf(
		"file %s does not exist on %s", e.Path, e.Ref,
	)
}

// Workspace is a temporary directory owned by one run.
// Create with New, and call Clean when done.
type Workspace struct {
	// Dir is the filesystem location of the workspace.
	Dir string

	placeholders map[string]bool
}

// New creates a fresh workspace under parent. An empty
// parent uses the system temporary directory.
func New(parent string) (*Workspace, error) {
	const errCtx = "creating workspace"

	dir, err := os.MkdirTemp(parent, "modify-*")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Debug("workspace created", "dir", dir)

	return &Workspace{
		Dir:          dir,
		placeholders: make(map[string]bool),
	}, nil
}

// Clean removes the workspace directory.
func (w *Workspace) Clean() error {
	const errCtx = "cleaning workspace"

	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Fetch downloads every path at ref into the workspace and
// returns the fetched contents in path order. A file that
// does not exist fails with *MissingFileError unless
// tolerateMissing is set; then it is recorded as absent and
// a zero length placeholder is written for the mutator to
// fill. A placeholder still empty at Read time reads as
// absent. Remote content must be valid UTF-8.
func (w *Workspace) Fetch(
	ctx context.Context,
	reader git.FileReader,
	ref string,
	paths []string,
	tolerateMissing bool,
) ([]changes.Content, error) {
	const errCtx = "fetching files"

	if err := checkPaths(paths); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	out := make([]changes.Content, 0, len(paths))

	for _, path := range paths {
		file, err := reader.GetFile(ctx, path, ref)

		switch {
		case errors.Is(err, git.ErrNotFound):
			if !tolerateMissing {
				return nil, &MissingFileError{
					Path: path,
					Ref:  ref,
				}
			}

			slog.Info(
				"file missing, starting empty",
				"path", path,
				"ref", ref,
			)

			if err := w.write(path, ""); err != nil {
				return nil, fmt.Errorf(
					"%s: %w", errCtx, err,
				)
			}

			w.placeholders[path] = true

			out = append(out, changes.Missing())

			continue
		case err != nil:
			return nil, fmt.Errorf(
				"%s: %s: %w", errCtx, path, err,
			)
		}

		if err := checkText(path, file.Content); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		if err := w.write(path, file.Content); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		out = append(out, changes.Text(file.Content))
	}

	return out, nil
}

// Read returns the current content of every path in the
// workspace. A file the mutator removed, or a placeholder
// it left empty, reads as absent. Content must be valid
// UTF-8.
func (w *Workspace) Read(
	paths []string,
) ([]changes.Content, error) {
	const errCtx = "reading workspace"

	if err := checkPaths(paths); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	out := make([]changes.Content, 0, len(paths))

	for _, path := range paths {
		//nolint:gosec // paths are checked to stay local
		by, err := os.ReadFile(w.Path(path))

		switch {
		case errors.Is(err, fs.ErrNotExist):
			out = append(out, changes.Missing())
		case err != nil:
			return nil, fmt.Errorf(
				"%s: %s: %w", errCtx, path, err,
			)
		case len(by) == 0 && w.placeholders[path]:
			out = append(out, changes.Missing())
		default:
			if err := checkText(path, string(by)); err != nil {
				return nil, fmt.Errorf("%s: %w", errCtx, err)
			}

			out = append(out, changes.Text(string(by)))
		}
	}

	return out, nil
}

// Path returns the local location of a repository path.
func (w *Workspace) Path(path string) string {
	return filepath.Join(w.Dir, filepath.FromSlash(path))
}

func (w *Workspace) write(path string, content string) error {
	local := w.Path(path)

	//nolint:gosec // mode 0755 is intentional
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	//nolint:gosec // mode 0644 is intentional
	if err := os.WriteFile(local, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// checkText rejects content that would not survive the
// JSON fingerprint and the remote APIs unchanged.
func checkText(path string, content string) error {
	if !utf8.ValidString(content) {
		return fmt.Errorf("%s is not valid UTF-8 text", path)
	}

	return nil
}

// checkPaths rejects paths that would land outside the
// workspace.
func checkPaths(paths []string) error {
	for _, path := range paths {
		if !filepath.IsLocal(filepath.FromSlash(path)) {
			return fmt.Errorf(
				"path %q escapes the workspace", path,
			)
		}
	}

	return nil
}
