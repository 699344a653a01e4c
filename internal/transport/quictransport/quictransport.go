// Package quictransport implements the transport adapter (C8) over QUIC:
// each RPC is one bidirectional stream carrying a length-prefixed,
// XDR-encoded SyncRequest followed by a length-prefixed SyncResponse.
// File content is lz4-compressed on the wire; retries and backoff pacing
// are this package's responsibility per spec 4.7, not the session's.
package quictransport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/quic-go/quic-go"
	"golang.org/x/time/rate"

	"github.com/meshsync/syncd/internal/errs"
	"github.com/meshsync/syncd/internal/logger"
	"github.com/meshsync/syncd/internal/syncmodel"
	"github.com/meshsync/syncd/internal/transport"
)

var l = logger.DefaultLogger

var _ transport.Peer = (*Peer)(nil)

// maxFrame bounds a single length-prefixed frame, matching spec 5's
// bounded in-memory buffer for bulk transfers (1 MiB) with headroom for
// the envelope fields around the content bytes.
const maxFrame = 2 << 20

// Config tunes retry/backoff and per-call timeouts (spec 4.7, 5).
type Config struct {
	CallTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		CallTimeout:  30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 250 * time.Millisecond,
	}
}

// Peer is a transport.Peer backed by one QUIC connection to a device.
type Peer struct {
	conn    *quic.Conn
	cfg     Config
	limiter *rate.Limiter
}

// NewPeer wraps an established QUIC connection (dialed by the
// collaborator transport layer; quictransport does not handle discovery
// or authentication, per spec 6.1).
func NewPeer(conn *quic.Conn, cfg Config) *Peer {
	return &Peer{
		conn:    conn,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.RetryBackoff), 1),
	}
}

func (p *Peer) call(ctx context.Context, req syncmodel.SyncRequest) (syncmodel.SyncResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := p.limiter.Wait(ctx); err != nil {
				return syncmodel.SyncResponse{}, errs.New(errs.TransportTimeout, "", err)
			}
		}

		resp, err := p.callOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		l.Debugf("quictransport: attempt %d failed: %v", attempt, err)
	}
	return syncmodel.SyncResponse{}, errs.New(errs.TransportTimeout, "", lastErr)
}

func (p *Peer) callOnce(ctx context.Context, req syncmodel.SyncRequest) (syncmodel.SyncResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	stream, err := p.conn.OpenStreamSync(cctx)
	if err != nil {
		return syncmodel.SyncResponse{}, err
	}
	defer stream.Close()

	if err := writeFrame(stream, req.MarshalXDR()); err != nil {
		return syncmodel.SyncResponse{}, err
	}
	if err := stream.Close(); err != nil {
		return syncmodel.SyncResponse{}, err
	}

	bs, err := readFrame(stream)
	if err != nil {
		return syncmodel.SyncResponse{}, err
	}

	var resp syncmodel.SyncResponse
	if err := resp.UnmarshalXDR(bs); err != nil {
		return syncmodel.SyncResponse{}, errs.New(errs.ProtocolError, "", err)
	}
	if resp.Kind == syncmodel.RespErr {
		return syncmodel.SyncResponse{}, fmt.Errorf("peer error: %s", resp.Err)
	}
	return resp, nil
}

func (p *Peer) GetStates(ctx context.Context, syncID string) (map[string]syncmodel.FileState, error) {
	resp, err := p.call(ctx, syncmodel.GetStates(syncID))
	if err != nil {
		return nil, err
	}
	return resp.States, nil
}

func (p *Peer) GetFile(ctx context.Context, syncID, path string) ([]byte, error) {
	resp, err := p.call(ctx, syncmodel.GetFile(syncID, path))
	if err != nil {
		return nil, err
	}
	return decompress(resp.Bytes)
}

func (p *Peer) PutFile(ctx context.Context, syncID, path string, meta syncmodel.FileMetadata, content []byte) error {
	compressed, err := compress(content)
	if err != nil {
		return err
	}
	_, err = p.call(ctx, syncmodel.PutFile(syncID, path, meta, compressed))
	return err
}

func (p *Peer) DeleteFiles(ctx context.Context, syncID string, tombstones map[string]syncmodel.Tombstone) error {
	paths := make([]string, 0, len(tombstones))
	ts := make([]syncmodel.Tombstone, 0, len(tombstones))
	for path, t := range tombstones {
		paths = append(paths, path)
		ts = append(ts, t)
	}
	_, err := p.call(ctx, syncmodel.DeleteFiles(syncID, paths, ts))
	return err
}

func compress(bs []byte) ([]byte, error) {
	if len(bs) == 0 {
		return bs, nil
	}
	buf := make([]byte, lz4.CompressBlockBound(len(bs)))
	n, err := lz4.CompressBlock(bs, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible input: lz4 reports this by returning n=0;
		// fall back to storing it uncompressed with a marker length of 0.
		return append([]byte{0}, bs...), nil
	}
	return append([]byte{1}, buf[:n]...), nil
}

func decompress(bs []byte) ([]byte, error) {
	if len(bs) == 0 {
		return bs, nil
	}
	marker, payload := bs[0], bs[1:]
	if marker == 0 {
		return payload, nil
	}
	out := make([]byte, maxFrame)
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func writeFrame(w io.Writer, bs []byte) error {
	if len(bs) > maxFrame {
		return fmt.Errorf("quictransport: frame of %d bytes exceeds %d limit", len(bs), maxFrame)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(bs)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(bs)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return nil, fmt.Errorf("quictransport: frame of %d bytes exceeds %d limit", n, maxFrame)
	}
	bs := make([]byte, n)
	if _, err := io.ReadFull(r, bs); err != nil {
		return nil, err
	}
	return bs, nil
}
