// Package digester fingerprints the final state of a change set.
// The fingerprint names pull request branches, so re-running the
// same edit against the same files lands on the same branch.
package digester
