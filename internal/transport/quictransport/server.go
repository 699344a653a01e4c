package quictransport

import (
	"context"

	"github.com/quic-go/quic-go"

	"github.com/meshsync/syncd/internal/logger"
	"github.com/meshsync/syncd/internal/store"
	"github.com/meshsync/syncd/internal/syncmodel"
)

// Server answers the four RPCs (spec 4.7) against a local Store, for
// whichever SyncGroup roots dispatch resolves by sync_id.
type Server struct {
	Store    *store.Store
	Dispatch func(syncID string) (root string, ok bool)
}

// Serve accepts streams from conn until ctx is done or the connection
// closes, handling each on its own goroutine (one RPC per stream,
// matching the client side's one-stream-per-call convention).
func (s *Server) Serve(ctx context.Context, conn *quic.Conn) error {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return err
		}
		go s.handle(stream)
	}
}

func (s *Server) handle(stream *quic.Stream) {
	defer stream.Close()

	bs, err := readFrame(stream)
	if err != nil {
		logger.DefaultLogger.Warnf("quictransport: read request: %v", err)
		return
	}
	var req syncmodel.SyncRequest
	if err := req.UnmarshalXDR(bs); err != nil {
		writeFrame(stream, syncmodel.ErrResponse("malformed request").MarshalXDR())
		return
	}

	resp := s.dispatch(req)
	if err := writeFrame(stream, resp.MarshalXDR()); err != nil {
		logger.DefaultLogger.Warnf("quictransport: write response: %v", err)
	}
}

func (s *Server) dispatch(req syncmodel.SyncRequest) syncmodel.SyncResponse {
	root, ok := s.Dispatch(req.SyncID)
	if !ok {
		return syncmodel.ErrResponse("unknown sync_id")
	}

	switch req.Kind {
	case syncmodel.ReqGetStates:
		states := make(map[string]syncmodel.FileState)
		err := s.Store.Iter(req.SyncID, func(path string, st syncmodel.FileState) bool {
			states[path] = st
			return true
		})
		if err != nil {
			return syncmodel.ErrResponse(err.Error())
		}
		return syncmodel.StatesResponse(states)

	case syncmodel.ReqGetFile:
		st, found, err := s.Store.Get(req.SyncID, req.Path)
		if err != nil {
			return syncmodel.ErrResponse(err.Error())
		}
		if !found || !st.IsLive() {
			return syncmodel.ErrResponse("no live file at path")
		}
		content, err := readLocalFile(root, req.Path)
		if err != nil {
			return syncmodel.ErrResponse(err.Error())
		}
		compressed, err := compress(content)
		if err != nil {
			return syncmodel.ErrResponse(err.Error())
		}
		return syncmodel.FileBytesResponse(st.Live, compressed)

	case syncmodel.ReqPutFile:
		content, err := decompress(req.Content)
		if err != nil {
			return syncmodel.ErrResponse(err.Error())
		}
		abs := joinRoot(root, req.Path)
		if err := s.Store.AtomicApplyRemote(req.SyncID, abs, req.Path, syncmodel.LiveState(req.PutMeta), byteReaderFrom(content)); err != nil {
			return syncmodel.ErrResponse(err.Error())
		}
		return syncmodel.AckResponse()

	case syncmodel.ReqDeleteFiles:
		for i, path := range req.Paths {
			abs := joinRoot(root, path)
			var ts syncmodel.Tombstone
			if i < len(req.Tombstones) {
				ts = req.Tombstones[i]
			}
			if err := s.Store.AtomicApplyRemote(req.SyncID, abs, path, syncmodel.TombstoneState(ts), nil); err != nil {
				return syncmodel.ErrResponse(err.Error())
			}
		}
		return syncmodel.AckResponse()

	default:
		return syncmodel.ErrResponse("unknown request kind")
	}
}
