// Copyright (C) 2014 Jakob Borg and Contributors (see the CONTRIBUTORS file).
//
// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.
//
// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE. See the GNU General Public License for
// more details.
//
// You should have received a copy of the GNU General Public License along
// with this program. If not, see <http://www.gnu.org/licenses/>.

// Package peerid provides the opaque, 32-byte stable identity of a device
// participating in one or more sync groups.
package peerid

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/meshsync/syncd/internal/luhn"
)

// ID is the opaque identifier of a device. Only equality and hashing (as a
// map key) are meaningful; the ordering used by Compare exists solely to
// give VersionVector and wire encodings a canonical, deterministic order.
type ID [32]byte

// Empty is the zero value, used as a sentinel for "no peer" in places that
// need one (never a valid peer identity).
var Empty ID

// Generate derives a new ID from the raw bytes of a certificate, the way a
// device's identity is bound to its transport credential.
func Generate(rawCert []byte) ID {
	var n ID
	h := sha256.Sum256(rawCert)
	copy(n[:], h[:])
	return n
}

// Random returns a new ID seeded from the system CSPRNG. Used the first
// time a device starts and has no certificate-derived identity to hash.
func Random() (ID, error) {
	var n ID
	if _, err := rand.Read(n[:]); err != nil {
		return n, err
	}
	return n, nil
}

func FromString(s string) (ID, error) {
	var n ID
	err := n.UnmarshalText([]byte(s))
	return n, err
}

func FromBytes(bs []byte) (ID, error) {
	var n ID
	if len(bs) != len(n) {
		return n, errors.New("peerid: incorrect length of byte slice")
	}
	copy(n[:], bs)
	return n, nil
}

// String returns the canonical, Luhn-checksummed, chunked presentation
// form: base32 of the raw bytes, four check-digited 13-character groups,
// hyphenated every 7 characters.
func (n ID) String() string {
	id := base32.StdEncoding.EncodeToString(n[:])
	id = strings.TrimRight(id, "=")
	id, err := luhnify(id)
	if err != nil {
		// Only reachable if the alphabet itself is malformed, which never
		// happens for the fixed Base32 alphabet.
		panic(err)
	}
	return chunkify(id)
}

func (n ID) GoString() string { return n.String() }

func (n ID) Compare(other ID) int { return bytes.Compare(n[:], other[:]) }

func (n ID) Equals(other ID) bool { return n == other }

func (n ID) IsEmpty() bool { return n == Empty }

func (n ID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *ID) UnmarshalText(bs []byte) error {
	id := string(bs)
	id = strings.TrimRight(id, "=")
	id = strings.ToUpper(id)
	id = untypeoify(id)
	id = unchunkify(id)

	var err error
	switch len(id) {
	case 56:
		id, err = unluhnify(id)
		if err != nil {
			return err
		}
		fallthrough
	case 52:
		dec, err := base32.StdEncoding.DecodeString(id + "====")
		if err != nil {
			return err
		}
		if len(dec) != len(n) {
			return errors.New("peerid: invalid: incorrect decoded length")
		}
		copy(n[:], dec)
		return nil
	default:
		return errors.New("peerid: invalid: incorrect length")
	}
}

func luhnify(s string) (string, error) {
	if len(s) != 52 {
		return "", fmt.Errorf("peerid: unsupported string length %d", len(s))
	}
	res := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		p := s[i*13 : (i+1)*13]
		c, err := luhn.Base32.Generate(p)
		if err != nil {
			return "", err
		}
		res = append(res, fmt.Sprintf("%s%c", p, c))
	}
	return res[0] + res[1] + res[2] + res[3], nil
}

func unluhnify(s string) (string, error) {
	if len(s) != 56 {
		return "", fmt.Errorf("peerid: unsupported string length %d", len(s))
	}
	res := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		p := s[i*14 : (i+1)*14-1]
		c, err := luhn.Base32.Generate(p)
		if err != nil {
			return "", err
		}
		if g := fmt.Sprintf("%s%c", p, c); g != s[i*14:(i+1)*14] {
			return "", errors.New("peerid: check digit incorrect")
		}
		res = append(res, p)
	}
	return res[0] + res[1] + res[2] + res[3], nil
}

var chunkPattern = regexp.MustCompile(`(.{7})`)

func chunkify(s string) string {
	s = chunkPattern.ReplaceAllString(s, "$1-")
	return strings.Trim(s, "-")
}

func unchunkify(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

func untypeoify(s string) string {
	s = strings.ReplaceAll(s, "0", "O")
	s = strings.ReplaceAll(s, "1", "I")
	s = strings.ReplaceAll(s, "8", "B")
	return s
}
