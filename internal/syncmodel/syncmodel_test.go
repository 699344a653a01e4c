package syncmodel

import (
	"testing"
	"time"

	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/vector"
)

func samplePeer() peerid.ID { return peerid.Generate([]byte("peer")) }

func TestFileStateVV(t *testing.T) {
	vv := vector.Vector{}.Update(samplePeer())

	live := LiveState(FileMetadata{Size: 10, VV: vv})
	if !live.IsLive() || live.IsTombstone() {
		t.Fatal("expected live state")
	}
	if live.VV().Compare(vv) != vector.Equal {
		t.Fatal("VV() didn't return the live metadata's vector")
	}

	tomb := TombstoneState(Tombstone{DeletedBy: samplePeer(), VV: vv})
	if !tomb.IsTombstone() || tomb.IsLive() {
		t.Fatal("expected tombstone state")
	}
	if tomb.VV().Compare(vv) != vector.Equal {
		t.Fatal("VV() didn't return the tombstone's vector")
	}
}

func TestFileStateXDRRoundTrip(t *testing.T) {
	vv := vector.Vector{}.Update(samplePeer()).Update(samplePeer())
	now := time.Unix(1700000000, 0).UTC()

	cases := []FileState{
		LiveState(FileMetadata{ContentHash: []byte{1, 2, 3}, Mtime: now, Size: 42, VV: vv, IsDirectory: false}),
		LiveState(FileMetadata{IsDirectory: true, VV: vv}),
		TombstoneState(Tombstone{DeletedAt: now, DeletedBy: samplePeer(), VV: vv}),
	}

	for i, want := range cases {
		bs := want.MarshalXDR()
		var got FileState
		if err := got.UnmarshalXDR(bs); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got.Kind != want.Kind {
			t.Fatalf("case %d: kind mismatch", i)
		}
		if got.VV().Compare(want.VV()) != vector.Equal {
			t.Fatalf("case %d: vv mismatch", i)
		}
		if got.IsLive() && got.Live.Size != want.Live.Size {
			t.Fatalf("case %d: size mismatch", i)
		}
	}
}

func TestSyncRequestXDRRoundTrip(t *testing.T) {
	peer := samplePeer()
	vv := vector.Vector{}.Update(peer)

	cases := []SyncRequest{
		GetStates("group1"),
		GetFile("group1", "docs/a.txt"),
		PutFile("group1", "docs/a.txt", FileMetadata{Size: 3, VV: vv}, []byte("abc")),
		DeleteFiles("group1", []string{"docs/b.txt"}, []Tombstone{{DeletedBy: peer, VV: vv}}),
	}

	for i, want := range cases {
		bs := want.MarshalXDR()
		var got SyncRequest
		if err := got.UnmarshalXDR(bs); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got.Kind != want.Kind || got.SyncID != want.SyncID || got.Path != want.Path {
			t.Fatalf("case %d: envelope mismatch: %+v != %+v", i, got, want)
		}
		if got.Kind == ReqPutFile && string(got.Content) != string(want.Content) {
			t.Fatalf("case %d: content mismatch", i)
		}
		if got.Kind == ReqDeleteFiles && len(got.Paths) != len(want.Paths) {
			t.Fatalf("case %d: paths mismatch", i)
		}
	}
}

func TestSyncResponseXDRRoundTrip(t *testing.T) {
	vv := vector.Vector{}.Update(samplePeer())

	cases := []SyncResponse{
		StatesResponse(map[string]FileState{
			"a.txt": LiveState(FileMetadata{Size: 1, VV: vv}),
			"b.txt": TombstoneState(Tombstone{DeletedBy: samplePeer(), VV: vv}),
		}),
		FileBytesResponse(FileMetadata{Size: 3, VV: vv}, []byte("xyz")),
		AckResponse(),
		ErrResponse("boom"),
	}

	for i, want := range cases {
		bs := want.MarshalXDR()
		var got SyncResponse
		if err := got.UnmarshalXDR(bs); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got.Kind != want.Kind {
			t.Fatalf("case %d: kind mismatch", i)
		}
		switch want.Kind {
		case RespStates:
			if len(got.States) != len(want.States) {
				t.Fatalf("case %d: states count mismatch", i)
			}
		case RespFileBytes:
			if string(got.Bytes) != string(want.Bytes) {
				t.Fatalf("case %d: bytes mismatch", i)
			}
		case RespErr:
			if got.Err != want.Err {
				t.Fatalf("case %d: err mismatch", i)
			}
		}
	}
}
