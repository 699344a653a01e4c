package syncmodel

// RequestKind discriminates the four SyncRequest variants a session can
// send to a peer over the transport (spec 6.3).
type RequestKind uint8

const (
	ReqGetStates RequestKind = iota
	ReqGetFile
	ReqPutFile
	ReqDeleteFiles
)

// SyncRequest is the envelope for every message a SyncSession sends to a
// peer's transport adapter (spec 6.3, C8). Only the fields relevant to
// Kind are populated; the rest are left at their zero value.
type SyncRequest struct {
	Kind RequestKind

	// GetStates
	SyncID string

	// GetFile
	Path string

	// PutFile
	PutMeta FileMetadata
	Content []byte

	// DeleteFiles
	Paths      []string
	Tombstones []Tombstone
}

func GetStates(syncID string) SyncRequest {
	return SyncRequest{Kind: ReqGetStates, SyncID: syncID}
}

func GetFile(syncID, path string) SyncRequest {
	return SyncRequest{Kind: ReqGetFile, SyncID: syncID, Path: path}
}

func PutFile(syncID, path string, meta FileMetadata, content []byte) SyncRequest {
	return SyncRequest{Kind: ReqPutFile, SyncID: syncID, Path: path, PutMeta: meta, Content: content}
}

func DeleteFiles(syncID string, paths []string, tombstones []Tombstone) SyncRequest {
	return SyncRequest{Kind: ReqDeleteFiles, SyncID: syncID, Paths: paths, Tombstones: tombstones}
}

// ResponseKind discriminates the four SyncResponse variants (spec 6.3).
type ResponseKind uint8

const (
	RespStates ResponseKind = iota
	RespFileBytes
	RespAck
	RespErr
)

// SyncResponse is the envelope returned for a SyncRequest. Err carries a
// transport- or protocol-level failure (spec 7). GetStates returns
// normally even when the peer holds nothing for the group (an empty
// States map, not an Err); GetFile for a path with no Live entry on the
// peer is answered with an Err.
type SyncResponse struct {
	Kind ResponseKind

	States map[string]FileState
	Meta   FileMetadata
	Bytes  []byte
	Err    string
}

func StatesResponse(states map[string]FileState) SyncResponse {
	return SyncResponse{Kind: RespStates, States: states}
}

func FileBytesResponse(meta FileMetadata, content []byte) SyncResponse {
	return SyncResponse{Kind: RespFileBytes, Meta: meta, Bytes: content}
}

func AckResponse() SyncResponse {
	return SyncResponse{Kind: RespAck}
}

func ErrResponse(msg string) SyncResponse {
	return SyncResponse{Kind: RespErr, Err: msg}
}
