package program

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Magic prefixes every encoded artifact.
var Magic = []byte("STCRC\x00")

// Extension is the file extension of compiled artifacts.
const Extension = ".stcrc"

// ErrNotArtifact is returned when data does not start with Magic.
var ErrNotArtifact = errors.New("program: not a compiled artifact")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("program: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Program to a deterministic CBOR artifact.
func Marshal(p *Program) ([]byte, error) {
	body, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("program: marshal: %w", err)
	}
	out := make([]byte, 0, len(Magic)+len(body))
	out = append(out, Magic...)
	return append(out, body...), nil
}

// Unmarshal decodes and validates an artifact produced by Marshal.
func Unmarshal(data []byte) (*Program, error) {
	if !IsArtifact(data) {
		return nil, ErrNotArtifact
	}
	var p Program
	if err := cbor.Unmarshal(data[len(Magic):], &p); err != nil {
		return nil, fmt.Errorf("program: unmarshal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("program: invalid artifact: %w", err)
	}
	return &p, nil
}

// IsArtifact reports whether data starts with the artifact magic.
func IsArtifact(data []byte) bool {
	return bytes.HasPrefix(data, Magic)
}
