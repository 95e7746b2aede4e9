package smt

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/canopy-network/vsmt/lib"
	"github.com/canopy-network/vsmt/lib/codec"
	"github.com/canopy-network/vsmt/lib/crypto"
)

/*
	Proof encodings

	Binary (protobuf wire fields):
	  1: varint          slots
	  2: bytes           bitmap, most significant bit first, padded with zero bits
	  3: repeated bytes  explicit sibling digests in slot order

	JSON:
	  {"entries":[{"empty":true},{"sibling":"<hex>"},...]}
*/

var (
	_ codec.WireMessage = &Proof{}
	_ codec.JSONCodec   = &Proof{}

	proofCodec = codec.Protowire{}
)

// AppendWire() lays out the proof as protobuf fields
func (p *Proof) AppendWire(b []byte) []byte {
	b = codec.AppendVarint(b, 1, p.slots)
	b = codec.AppendBytes(b, 2, p.bitmap)
	for _, s := range p.siblings {
		b = codec.AppendBytesAlways(b, 3, s[:])
	}
	return b
}

// SetWireField() decodes a single proof field
func (p *Proof) SetWireField(f codec.Field) error {
	switch f.Num {
	case 1:
		p.slots = f.Varint
	case 2:
		p.bitmap = append([]byte(nil), f.Bytes...)
	case 3:
		d, err := crypto.NewDigest(f.Bytes)
		if err != nil {
			return err
		}
		p.siblings = append(p.siblings, d)
	}
	return nil
}

// Bytes() returns the binary encoding of the proof
func (p *Proof) Bytes() []byte {
	bz, _ := proofCodec.Marshal(p)
	return bz
}

// String() returns the hex of the binary encoding
func (p *Proof) String() string { return hex.EncodeToString(p.Bytes()) }

// NewProofFromBytes() decodes a binary proof, the shape is checked at verification
func NewProofFromBytes(bz []byte) (*Proof, lib.ErrorI) {
	p := new(Proof)
	if err := proofCodec.Unmarshal(bz, p); err != nil {
		return nil, ErrMalformedProof(err.Error())
	}
	return p, nil
}

// NewProofFromString() decodes the hex of a binary proof
func NewProofFromString(s string) (*Proof, lib.ErrorI) {
	bz, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedProof(err.Error())
	}
	return NewProofFromBytes(bz)
}

// ProofEntry is a single slot of a proof in its json form
type ProofEntry struct {
	Empty   bool           `json:"empty,omitempty"`
	Sibling *crypto.Digest `json:"sibling,omitempty"`
}

// jsonProof is the json representation of a proof
type jsonProof struct {
	Entries []ProofEntry `json:"entries"`
}

// Entries() expands the proof into one entry per slot
func (p *Proof) Entries() []ProofEntry {
	out, next := make([]ProofEntry, 0, min(p.slots, uint64(len(p.bitmap))*8)), 0
	for slot := uint64(0); slot < p.slots && slot/8 < uint64(len(p.bitmap)); slot++ {
		if !p.isExplicit(slot) || next >= len(p.siblings) {
			out = append(out, ProofEntry{Empty: true})
			continue
		}
		s := p.siblings[next]
		out = append(out, ProofEntry{Sibling: &s})
		next++
	}
	return out
}

// MarshalJSON() implements the json.Marshaler interface
func (p *Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonProof{Entries: p.Entries()})
}

// UnmarshalJSON() implements the json.Unmarshaler interface
func (p *Proof) UnmarshalJSON(bz []byte) error {
	j := new(jsonProof)
	if err := json.Unmarshal(bz, j); err != nil {
		return err
	}
	*p = Proof{}
	for i, e := range j.Entries {
		switch {
		case e.Empty && e.Sibling == nil:
			p.push(crypto.ZeroDigest)
		case !e.Empty && e.Sibling != nil && !e.Sibling.IsZero():
			p.push(*e.Sibling)
		default:
			return ErrMalformedProof(fmt.Sprintf("entry %d must be either empty or an explicit sibling", i))
		}
	}
	return nil
}
