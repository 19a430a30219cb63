package artifact

import (
	"crypto/sha256"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
)

// Layout inside <root>/<run_id>/
const (
	TablesDir   = "tables"
	SummaryFile = "summary.json"
)

// SafeTableName turns a table identifier into a readable file name stem:
// "/" and ":" become "_", "." becomes "__", anything else outside
// [A-Za-z0-9_-] becomes "_".
func SafeTableName(tableID string) string {
	var b strings.Builder
	for _, r := range tableID {
		switch {
		case r == '.':
			b.WriteString("__")
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// maxStem keeps file names well under common 255-byte limits
const maxStem = 120

// TablePath returns the artifact path for a table relative to the run
// directory. The base58 suffix keeps ids that sanitize to the same stem
// (e.g. "a/b" and "a:b") apart.
func TablePath(tableID string) string {
	sum := sha256.Sum256([]byte(tableID))
	stem := SafeTableName(tableID)
	if len(stem) > maxStem {
		stem = stem[:maxStem]
	}
	name := stem + "-" + base58.Encode(sum[:8]) + ".json"
	return filepath.Join(TablesDir, name)
}
