package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ArtifactEncoding defines the encoding formats for persisted artifacts.
// JSON keeps entries inspectable and repairable with standard tooling; CBOR
// trades that for smaller rows.
type ArtifactEncoding int

const (
	// ArtifactEncodingJSON is the JSON encoding format (default).
	ArtifactEncodingJSON ArtifactEncoding = iota
	// ArtifactEncodingCBOR is the CBOR encoding format.
	ArtifactEncodingCBOR
)

// EncodeArtifact encodes an artifact into the specified encoding format. If
// no format is specified, JSON is used.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	if len(encoding) > 0 && encoding[0] == ArtifactEncodingCBOR {
		return encodeCBOR(a)
	}
	return json.Marshal(a)
}

// DecodeArtifact decodes an artifact from the specified format. If no format
// is specified, JSON is used.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	if len(encoding) > 0 && encoding[0] == ArtifactEncodingCBOR {
		return cbor.Unmarshal(data, out)
	}
	return json.Unmarshal(data, out)
}

// ParseArtifactEncoding maps a config string to an encoding. The empty
// string means JSON.
func ParseArtifactEncoding(s string) (ArtifactEncoding, error) {
	switch s {
	case "", "json":
		return ArtifactEncodingJSON, nil
	case "cbor":
		return ArtifactEncodingCBOR, nil
	default:
		return 0, fmt.Errorf("unknown cache encoding %q (want json or cbor)", s)
	}
}

func encodeCBOR(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}
