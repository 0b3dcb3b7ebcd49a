package lifecycle

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	apperrors "github.com/sitekit/search-assistant/pkg/errors"
)

// Random bytes per filename token; hex-encodes to 32 characters.
const tokenBytes = 16

// newFilename generates an unguessable snapshot filename of the form
// dataset-<32 hex chars>.json. The unpredictable path is defence in depth on
// top of the endpoint's credential and origin checks, not a replacement for
// them.
func newFilename() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%w: generating filename token: %v", apperrors.ErrInternal, err)
	}
	return filePrefix + hex.EncodeToString(b) + fileSuffix, nil
}
