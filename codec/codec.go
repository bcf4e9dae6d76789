// Package codec wraps a serialized payload in the kapa data file envelope.
//
// An envelope is
//
//	[version:3][signature:4][bson payload]
//
// where version holds the major, minor and patch numbers of the program that
// wrote the file, one byte each, and signature is a fixed magic constant.
// Files written before version tracking existed are a bare payload; Decode
// accepts both.
//
// Payloads are BSON documents. A document starts with its int32 little
// endian length, so byte 3 of a bare payload is the high byte of that length
// and cannot match the first signature byte for any file under 4 GiB.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	versionParts = 3
	headerLen    = versionParts + 4

	// LastNonTrackingVersion is the last release whose files carry no envelope.
	LastNonTrackingVersion = "0.8.5"
)

// Version of the program, stamped into every encoded file. Set at build time:
//
//	go build -ldflags "-X github.com/fahmaliyi/kapa/codec.Version=1.2.3"
var Version = "0.9.0"

var signature = [4]byte{253, 7, 13, 147}

var ErrSerialization = errors.New("codec: serialization failed")

type envelopeKind int

const (
	legacyPayload envelopeKind = iota
	signedEnvelope
)

// envelope is the result of inspecting raw file bytes once.
type envelope struct {
	kind    envelopeKind
	version [versionParts]byte
	payload []byte
}

func parse(content []byte) envelope {
	if !HasSignature(content) {
		return envelope{kind: legacyPayload, payload: content}
	}
	e := envelope{kind: signedEnvelope, payload: content[headerLen:]}
	copy(e.version[:], content[:versionParts])
	return e
}

// HasSignature reports whether content starts with a version tag followed by
// the magic signature.
func HasSignature(content []byte) bool {
	return len(content) > headerLen && bytes.Equal(content[versionParts:headerLen], signature[:])
}

// Encode serializes v and prepends the envelope header.
func Encode(v any) ([]byte, error) {
	payload, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	tag := mustVersionBytes(Version)

	out := make([]byte, 0, headerLen+len(payload))
	out = append(out, tag[:]...)
	out = append(out, signature[:]...)
	out = append(out, payload...)
	return out, nil
}

// Decode deserializes content into v, with or without an envelope header.
func Decode(content []byte, v any) error {
	e := parse(content)
	if err := bson.Unmarshal(e.payload, v); err != nil {
		if e.kind == legacyPayload {
			return fmt.Errorf("%w: legacy payload: %v", ErrSerialization, err)
		}
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// GetVersion returns the version of the program that wrote content, or
// "<= LastNonTrackingVersion" for files without an envelope.
func GetVersion(content []byte) string {
	e := parse(content)
	if e.kind == legacyPayload {
		return "<= " + LastNonTrackingVersion
	}
	parts := make([]string, versionParts)
	for i, b := range e.version {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ".")
}

func versionBytes(version string) ([versionParts]byte, error) {
	var out [versionParts]byte
	parts := strings.Split(version, ".")
	if len(parts) != versionParts {
		return [versionParts]byte{}, fmt.Errorf("version %q must have %d parts", version, versionParts)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return [versionParts]byte{}, fmt.Errorf("version %q: component %q does not fit in a byte", version, p)
		}
		out[i] = byte(n)
	}
	return out, nil
}

// mustVersionBytes panics on a version that cannot be encoded; a build with
// such a version can never write a valid file.
func mustVersionBytes(version string) [versionParts]byte {
	b, err := versionBytes(version)
	if err != nil {
		panic(err)
	}
	return b
}
