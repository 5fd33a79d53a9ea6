package digester

import (
	"crypto/md5" //nolint:gosec // content address, not a security boundary
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/byte4ever/repo_modifier/modify/changes"
)

// Fingerprint returns the lowercase MD5 hex digest of the
// JSON object mapping every path to its final content. Map
// keys are sorted by the encoder, so the result does not
// depend on request order. Removed files encode as null and
// empty files as "", which keeps the two apart.
func Fingerprint(cs *changes.ChangeSet) (string, error) {
	const errCtx = "fingerprinting change set"

	state := make(map[string]*string, cs.Len())
	for path, content := range cs.After() {
		state[path] = content.Ptr()
	}

	by, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	sum := md5.Sum(by) //nolint:gosec // see import

	return hex.EncodeToString(sum[:]), nil
}
