// Package modifier runs one unattended edit of a remote
// repository. It fetches the requested files into a
// temporary workspace, runs the mutator on them, prints the
// resulting diff and, unless nothing changed or the run is
// a dry run, publishes the result as a direct commit or as
// a pull request on a branch named after the content.
package modifier
