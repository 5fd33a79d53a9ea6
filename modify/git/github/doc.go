// Package github implements git.Remote on top of the GitHub REST API (cloud or
// enterprise). Configure with a Config containing the repository owner, name,
// and personal access token. Set InstanceURL for GitHub Enterprise
// installations.
//
// Commits are assembled from blobs and trees through the Git data API, so no
// local clone is needed.
package github
