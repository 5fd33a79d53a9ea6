// Package stamper substitutes single-brace {VAR} placeholders
// in commit messages and pull request bodies. Variables come
// from "KEY VALUE" status files loaded with LoadStamps and
// from values computed during a run.
package stamper
