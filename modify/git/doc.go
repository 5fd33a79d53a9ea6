// Package git defines the remote repository collaborator used to publish
// edits without a local clone.
//
// Remote is split into narrow interfaces so each stage only depends on what it
// uses: FileReader for the workspace, BranchChecker for the planner and
// GitWriter for the publisher. Implementations exist for GitHub and GitLab in
// sub-packages, and gittest provides an in-memory remote for tests.
//
// Missing files and branches are reported with ErrNotFound so callers can test
// for them with errors.Is.
package git
