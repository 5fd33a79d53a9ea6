package changes

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

const diffContext = 3

// WriteDiff writes a unified diff of every record to w,
// labelling the sides orig/<path> and new/<path>.
// Unchanged files produce no output.
func WriteDiff(w io.Writer, cs *ChangeSet) error {
	const errCtx = "writing diff"

	for _, r := range cs.records {
		err := difflib.WriteUnifiedDiff(w, difflib.UnifiedDiff{
			A:        splitLines(r.Before.String()),
			B:        splitLines(r.After.String()),
			FromFile: "orig/" + r.Path,
			ToFile:   "new/" + r.Path,
			Context:  diffContext,
		})
		if err != nil {
			return fmt.Errorf(
				"%s %s: %w", errCtx, r.Path, err,
			)
		}
	}

	return nil
}

// splitLines splits s at every line boundary, "\r\n"
// counting as one, and ends each line with "\n". A
// missing final newline is added, so "a" and "a\r\n"
// compare equal line-wise.
func splitLines(s string) []string {
	var lines []string

	start := 0

	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isLineBreak(r) {
			i += size

			continue
		}

		lines = append(lines, s[start:i]+"\n")
		i += size

		if r == '\r' && i < len(s) && s[i] == '\n' {
			i++
		}

		start = i
	}

	if start < len(s) {
		lines = append(lines, s[start:]+"\n")
	}

	return lines
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f',
		'\x1c', '\x1d', '\x1e',
		'\u0085', '\u2028', '\u2029':
		return true
	}

	return false
}
