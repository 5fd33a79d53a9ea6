// Package gitlab implements git.Remote for GitLab projects. Blobs, trees and
// commits are staged in memory and published through the commits API when a
// branch is created or moved; deletions and merge requests map directly onto
// the files and merge request endpoints.
package gitlab
