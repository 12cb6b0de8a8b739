package extract

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// digestOf fingerprints extracted text for the uniqueness quality dimension.
func digestOf(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}
