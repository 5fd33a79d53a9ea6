package stamper

import (
	"fmt"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// LoadStamps reads status files and merges them into a
// single map. Each line is "KEY VALUE" with the first space
// as delimiter. Lines without a space are silently skipped.
// Later files override earlier ones.
func LoadStamps(
	infoFiles []string,
) (map[string]any, error) {
	const errCtx = "loading stamps"

	stamps := make(map[string]any)

	for _, sf := range infoFiles {
		content, err := os.ReadFile(sf) //nolint:gosec // paths from CLI flags
		if err != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}

		for _, line := range strings.Split(
			string(content), "\n",
		) {
			parts := strings.SplitN(line, " ", 2)
			if len(parts) == 2 {
				stamps[parts[0]] = parts[1]
			}
		}
	}

	return stamps, nil
}

// Stamp substitutes {VAR} placeholders in format with
// vars. Values must be strings. Unknown variables are
// preserved as-is.
func Stamp(
	format string,
	vars map[string]any,
) string {
	return fasttemplate.ExecuteStringStd(
		format, "{", "}", vars,
	)
}
