// Package publisher turns a change set into commits on the
// remote. Commit builds one commit holding every created or
// edited file; Publish points a branch at it, removes deleted
// files in one follow-up commit each and opens the pull
// request.
package publisher
