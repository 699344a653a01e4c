// Copyright (C) 2015 The Protocol Authors.

// Package syncmodel defines the data model shared by every component of
// the sync engine (spec 3): file metadata, tombstones, the per-path state
// they compose into, a sync group's configuration, and the peer-to-peer
// wire envelope (spec 6.3) that carries them between devices.
package syncmodel

import (
	"fmt"
	"time"

	"github.com/meshsync/syncd/internal/peerid"
	"github.com/meshsync/syncd/internal/vector"
)

// FileMetadata describes a live (non-deleted) file or directory at some
// point in its causal history (spec 3.1).
type FileMetadata struct {
	ContentHash []byte
	Mtime       time.Time
	Size        uint64
	VV          vector.Vector
	IsDirectory bool
}

// Tombstone marks a path deleted as of a given causal history (spec 3.1).
// A Tombstone carries no content hash or size: once deleted, a path's
// prior content is no longer part of the comparable state.
type Tombstone struct {
	DeletedAt time.Time
	DeletedBy peerid.ID
	VV        vector.Vector
}

// Kind discriminates the two FileState variants.
type Kind uint8

const (
	KindLive Kind = iota
	KindTombstone
)

func (k Kind) String() string {
	if k == KindTombstone {
		return "Tombstone"
	}
	return "Live"
}

// FileState is the tagged union spec 3.1 calls state(p): either a live
// FileMetadata or a Tombstone, never both. The zero value is not a valid
// state; use LiveState or TombstoneState to construct one.
type FileState struct {
	Kind      Kind
	Live      FileMetadata
	Tombstone Tombstone
}

func LiveState(m FileMetadata) FileState {
	return FileState{Kind: KindLive, Live: m}
}

func TombstoneState(t Tombstone) FileState {
	return FileState{Kind: KindTombstone, Tombstone: t}
}

func (s FileState) IsLive() bool      { return s.Kind == KindLive }
func (s FileState) IsTombstone() bool { return s.Kind == KindTombstone }

// VV returns the version vector of whichever variant is populated, the
// single piece of causal history every decision in the engine reasons
// about (spec 4.4).
func (s FileState) VV() vector.Vector {
	if s.Kind == KindTombstone {
		return s.Tombstone.VV
	}
	return s.Live.VV
}

func (s FileState) String() string {
	switch s.Kind {
	case KindTombstone:
		return fmt.Sprintf("Tombstone{deletedBy:%s, vv:%s}", s.Tombstone.DeletedBy.String()[:7], s.Tombstone.VV)
	default:
		return fmt.Sprintf("Live{size:%d, vv:%s}", s.Live.Size, s.Live.VV)
	}
}

// Mode controls which direction of a SyncGroup's reconciliation is
// permitted to move data (spec 3.2).
type Mode uint8

const (
	ModeTwoWay Mode = iota
	ModeUploadOnly
	ModeDownloadOnly
)

func (m Mode) String() string {
	switch m {
	case ModeUploadOnly:
		return "UploadOnly"
	case ModeDownloadOnly:
		return "DownloadOnly"
	default:
		return "TwoWay"
	}
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Mode) UnmarshalJSON(bs []byte) error {
	switch string(bs) {
	case `"UploadOnly"`:
		*m = ModeUploadOnly
	case `"DownloadOnly"`:
		*m = ModeDownloadOnly
	default:
		*m = ModeTwoWay
	}
	return nil
}

// SyncGroup is the local configuration of one synchronized folder (spec
// 3.2): a root path shared with a set of peers under a given policy.
type SyncGroup struct {
	SyncID          string   `json:"sync_id"`
	Root            string   `json:"root"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	Mode            Mode     `json:"mode"`
}

// PeerSnapshot is the full set of path states a peer reports for one sync
// group during an exchange (spec 6.3 GetStates response).
type PeerSnapshot struct {
	SyncID string
	States map[string]FileState
}
