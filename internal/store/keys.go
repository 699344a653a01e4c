package store

const (
	stateNS = "s" // (sync_id, path) -> FileState, XDR-encoded
	hashNS  = "h" // (sync_id, peer_id) -> last reconciled snapshot hash
)

func stateKey(syncID, path string) []byte {
	return []byte(stateNS + "\x00" + syncID + "\x00" + path)
}

func statePrefix(syncID string) []byte {
	return []byte(stateNS + "\x00" + syncID + "\x00")
}

func hashKey(syncID, peerID string) []byte {
	return []byte(hashNS + "\x00" + syncID + "\x00" + peerID)
}

// pathFromStateKey strips the namespace+sync_id prefix, returning the
// relative path portion of a key produced by stateKey.
func pathFromStateKey(key []byte, syncID string) string {
	prefix := statePrefix(syncID)
	return string(key[len(prefix):])
}
