package syncmodel

import (
	"bytes"
	"io"
	"time"

	"github.com/calmh/xdr"
	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/vector"
)

func unixNano(ns uint64) time.Time { return time.Unix(0, int64(ns)).UTC() }

// The EncodeXDR/MarshalXDR/DecodeXDR/UnmarshalXDR quartet, and the private
// encodeXDR/decodeXDR each delegates to, serves both the wire and the
// store's on-disk records (internal/store commits FileState.MarshalXDR
// and reads it back with UnmarshalXDR): one exported pair for
// streaming to an io.Writer/Reader, one for an in-memory []byte, sharing
// a single field-by-field implementation.

func (v vectorXDR) encodeXDR(xw *xdr.Writer) {
	xw.WriteUint32(uint32(len(v)))
	for _, c := range v {
		xw.WriteRaw(c.ID[:])
		xw.WriteUint32(c.Value)
	}
}

func (v *vectorXDR) decodeXDR(xr *xdr.Reader) {
	n := int(xr.ReadUint32())
	*v = make(vectorXDR, n)
	for i := range *v {
		var id peerid.ID
		xr.ReadRaw(id[:])
		(*v)[i] = vector.Counter{ID: id, Value: xr.ReadUint32()}
	}
}

// vectorXDR is a local defined type over vector.Vector, so the
// encode/decode methods above can be declared in this package; Go does
// not allow methods on a type defined in another package.
type vectorXDR vector.Vector

func encodeMetaXDR(xw *xdr.Writer, m FileMetadata) {
	xw.WriteBytes(m.ContentHash)
	xw.WriteUint64(uint64(m.Mtime.UnixNano()))
	xw.WriteUint64(m.Size)
	vv := vectorXDR(m.VV)
	vv.encodeXDR(xw)
	xw.WriteBool(m.IsDirectory)
}

func decodeMetaXDR(xr *xdr.Reader) FileMetadata {
	var m FileMetadata
	m.ContentHash = xr.ReadBytes()
	m.Mtime = unixNano(xr.ReadUint64())
	m.Size = xr.ReadUint64()
	var vv vectorXDR
	(&vv).decodeXDR(xr)
	m.VV = vector.Vector(vv)
	m.IsDirectory = xr.ReadBool()
	return m
}

func encodeTombstoneXDR(xw *xdr.Writer, t Tombstone) {
	xw.WriteUint64(uint64(t.DeletedAt.UnixNano()))
	xw.WriteRaw(t.DeletedBy[:])
	vv := vectorXDR(t.VV)
	vv.encodeXDR(xw)
}

func decodeTombstoneXDR(xr *xdr.Reader) Tombstone {
	var t Tombstone
	t.DeletedAt = unixNano(xr.ReadUint64())
	xr.ReadRaw(t.DeletedBy[:])
	var vv vectorXDR
	(&vv).decodeXDR(xr)
	t.VV = vector.Vector(vv)
	return t
}

func encodeStateXDR(xw *xdr.Writer, s FileState) {
	xw.WriteUint8(uint8(s.Kind))
	switch s.Kind {
	case KindTombstone:
		encodeTombstoneXDR(xw, s.Tombstone)
	default:
		encodeMetaXDR(xw, s.Live)
	}
}

func decodeStateXDR(xr *xdr.Reader) FileState {
	switch Kind(xr.ReadUint8()) {
	case KindTombstone:
		return TombstoneState(decodeTombstoneXDR(xr))
	default:
		return LiveState(decodeMetaXDR(xr))
	}
}

func (m FileMetadata) EncodeXDR(w io.Writer) (int, error) {
	xw := xdr.NewWriter(w)
	encodeMetaXDR(xw, m)
	return xw.Tot(), xw.Error()
}

func (m FileMetadata) MarshalXDR() []byte {
	aw := make(xdr.AppendWriter, 0, 128)
	xw := xdr.NewWriter(&aw)
	encodeMetaXDR(xw, m)
	return []byte(aw)
}

func (m *FileMetadata) UnmarshalXDR(bs []byte) error {
	xr := xdr.NewReader(bytes.NewReader(bs))
	*m = decodeMetaXDR(xr)
	return xr.Error()
}

func (s FileState) EncodeXDR(w io.Writer) (int, error) {
	xw := xdr.NewWriter(w)
	encodeStateXDR(xw, s)
	return xw.Tot(), xw.Error()
}

func (s FileState) MarshalXDR() []byte {
	aw := make(xdr.AppendWriter, 0, 128)
	xw := xdr.NewWriter(&aw)
	encodeStateXDR(xw, s)
	return []byte(aw)
}

func (s *FileState) UnmarshalXDR(bs []byte) error {
	xr := xdr.NewReader(bytes.NewReader(bs))
	*s = decodeStateXDR(xr)
	return xr.Error()
}

func (r SyncRequest) MarshalXDR() []byte {
	aw := make(xdr.AppendWriter, 0, 256)
	xw := xdr.NewWriter(&aw)

	xw.WriteUint8(uint8(r.Kind))
	xw.WriteString(r.SyncID)
	xw.WriteString(r.Path)

	switch r.Kind {
	case ReqPutFile:
		encodeMetaXDR(xw, r.PutMeta)
		xw.WriteBytes(r.Content)
	case ReqDeleteFiles:
		xw.WriteUint32(uint32(len(r.Paths)))
		for _, p := range r.Paths {
			xw.WriteString(p)
		}
		xw.WriteUint32(uint32(len(r.Tombstones)))
		for _, t := range r.Tombstones {
			encodeTombstoneXDR(xw, t)
		}
	}
	return []byte(aw)
}

func (r *SyncRequest) UnmarshalXDR(bs []byte) error {
	xr := xdr.NewReader(bytes.NewReader(bs))

	r.Kind = RequestKind(xr.ReadUint8())
	r.SyncID = xr.ReadString()
	r.Path = xr.ReadString()

	switch r.Kind {
	case ReqPutFile:
		r.PutMeta = decodeMetaXDR(xr)
		r.Content = xr.ReadBytes()
	case ReqDeleteFiles:
		n := int(xr.ReadUint32())
		r.Paths = make([]string, n)
		for i := range r.Paths {
			r.Paths[i] = xr.ReadString()
		}
		n = int(xr.ReadUint32())
		r.Tombstones = make([]Tombstone, n)
		for i := range r.Tombstones {
			r.Tombstones[i] = decodeTombstoneXDR(xr)
		}
	}
	return xr.Error()
}

func (resp SyncResponse) MarshalXDR() []byte {
	aw := make(xdr.AppendWriter, 0, 256)
	xw := xdr.NewWriter(&aw)

	xw.WriteUint8(uint8(resp.Kind))
	switch resp.Kind {
	case RespStates:
		xw.WriteUint32(uint32(len(resp.States)))
		for path, st := range resp.States {
			xw.WriteString(path)
			encodeStateXDR(xw, st)
		}
	case RespFileBytes:
		encodeMetaXDR(xw, resp.Meta)
		xw.WriteBytes(resp.Bytes)
	case RespErr:
		xw.WriteString(resp.Err)
	}
	return []byte(aw)
}

func (resp *SyncResponse) UnmarshalXDR(bs []byte) error {
	xr := xdr.NewReader(bytes.NewReader(bs))

	resp.Kind = ResponseKind(xr.ReadUint8())
	switch resp.Kind {
	case RespStates:
		n := int(xr.ReadUint32())
		resp.States = make(map[string]FileState, n)
		for i := 0; i < n; i++ {
			path := xr.ReadString()
			resp.States[path] = decodeStateXDR(xr)
		}
	case RespFileBytes:
		resp.Meta = decodeMetaXDR(xr)
		resp.Bytes = xr.ReadBytes()
	case RespErr:
		resp.Err = xr.ReadString()
	}
	return xr.Error()
}
