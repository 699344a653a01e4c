// Package conflict implements ConflictPolicy (C7): the naming grammar for
// conflict-copy artifacts, and the exclusion rule every other component
// (scanner, journal, session) applies so a conflict copy never itself
// becomes an input to reconciliation.
package conflict

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meshsync/syncd/internal/peerid"
)

// Marker is the literal segment that makes a basename a conflict
// artifact. Any basename containing it is excluded from Scanner
// enumeration, journal-driven updates, and Session snapshots (spec 4.6,
// invariant I4), which is what keeps a conflict copy from ever being
// treated as an ordinary synced path and producing a conflict-of-conflict
// chain.
const Marker = ".conflict."

// IsArtifact reports whether path names a conflict copy rather than an
// ordinary synced file.
func IsArtifact(path string) bool {
	return strings.Contains(filepath.Base(path), Marker)
}

// Path builds the conflict-copy path for original, per spec 4.6's
// grammar: <stem>.conflict.<peer_id>.<unix_ms>.<ext>. When original has
// no extension, the result simply omits the trailing ".<ext>" segment.
func Path(original string, peer peerid.ID, unixMs int64) string {
	ext := filepath.Ext(original)
	stem := strings.TrimSuffix(original, ext)
	base := fmt.Sprintf("%s%s%s.%d", stem, Marker, peer.String(), unixMs)
	if ext == "" {
		return base
	}
	return base + ext
}
