package store

import (
	"errors"
	"fmt"

	"github.com/canopy-network/smt/lib"
	"github.com/canopy-network/smt/lib/crypto"
	"google.golang.org/protobuf/encoding/protowire"
)

/* This file implements the protobuf wire encodings of proofs */

const (
	// proof and compiled proof fields
	proofFieldKey      protowire.Number = 1
	proofFieldTerminal protowire.Number = 2
	proofFieldSibling  protowire.Number = 3
	proofFieldProgram  protowire.Number = 4

	// terminal fields
	terminalFieldDepth        protowire.Number = 1
	terminalFieldCount        protowire.Number = 2
	terminalFieldWitnessKey   protowire.Number = 3
	terminalFieldWitnessValue protowire.Number = 4

	// sibling fields
	siblingFieldDepth  protowire.Number = 1
	siblingFieldDigest protowire.Number = 2
)

// Bytes() encodes the proof deterministically
func (p *Proof) Bytes() (bz []byte) {
	bz = appendKeysAndTerminals(bz, p.Keys, p.Terminals)
	for _, s := range p.Siblings {
		var msg []byte
		msg = appendVarint(msg, siblingFieldDepth, uint64(s.Depth))
		msg = appendBytes(msg, siblingFieldDigest, s.Digest[:])
		bz = appendBytes(bz, proofFieldSibling, msg)
	}
	return
}

// NewProofFromBytes() decodes a proof written by Bytes()
func NewProofFromBytes(bz []byte) (*Proof, lib.ErrorI) {
	p := new(Proof)
	err := forEachField(bz, func(num protowire.Number, _ uint64, v []byte) (err error) {
		switch num {
		case proofFieldKey:
			return appendDigestField(&p.Keys, v)
		case proofFieldTerminal:
			return appendTerminal(&p.Terminals, v)
		case proofFieldSibling:
			var s Sibling
			err = forEachField(v, func(num protowire.Number, n uint64, v []byte) (err error) {
				switch num {
				case siblingFieldDepth:
					s.Depth, err = depthFromVarint(n)
				case siblingFieldDigest:
					s.Digest, err = crypto.DigestFromBytes(v)
				}
				return
			})
			p.Siblings = append(p.Siblings, s)
		}
		return
	})
	if err != nil {
		return nil, ErrDecodeProof(err)
	}
	return p, nil
}

// Bytes() encodes the compiled proof; zero siblings take a single byte of the program
func (c *CompiledProof) Bytes() (bz []byte) {
	bz = appendKeysAndTerminals(bz, c.Keys, c.Terminals)
	program := make([]byte, 0, len(c.Ops))
	for _, op := range c.Ops {
		switch {
		case op.Code == OpSibling && op.Sibling.IsZero():
			program = append(program, byte(opZeroSibling))
		case op.Code == OpSibling:
			program = append(append(program, byte(OpSibling)), op.Sibling[:]...)
		default:
			program = append(program, byte(op.Code))
		}
	}
	return appendBytes(bz, proofFieldProgram, program)
}

// NewCompiledProofFromBytes() decodes a compiled proof written by Bytes()
func NewCompiledProofFromBytes(bz []byte) (*CompiledProof, lib.ErrorI) {
	c := new(CompiledProof)
	err := forEachField(bz, func(num protowire.Number, _ uint64, v []byte) error {
		switch num {
		case proofFieldKey:
			return appendDigestField(&c.Keys, v)
		case proofFieldTerminal:
			return appendTerminal(&c.Terminals, v)
		case proofFieldProgram:
			for len(v) > 0 {
				code := OpCode(v[0])
				v = v[1:]
				switch code {
				case opZeroSibling:
					c.Ops = append(c.Ops, Op{Code: OpSibling})
				case OpSibling:
					if len(v) < crypto.HashSize {
						return errors.New("truncated sibling")
					}
					op := Op{Code: OpSibling}
					copy(op.Sibling[:], v)
					c.Ops = append(c.Ops, op)
					v = v[crypto.HashSize:]
				case OpTerminal, OpMerge:
					c.Ops = append(c.Ops, Op{Code: code})
				default:
					return fmt.Errorf("unknown op code %d", code)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, ErrDecodeProof(err)
	}
	return c, nil
}

func appendKeysAndTerminals(bz []byte, keys []crypto.Digest, terminals []Terminal) []byte {
	for _, k := range keys {
		bz = appendBytes(bz, proofFieldKey, k[:])
	}
	for _, t := range terminals {
		var msg []byte
		msg = appendVarint(msg, terminalFieldDepth, uint64(t.Depth))
		msg = appendVarint(msg, terminalFieldCount, uint64(t.Count))
		if t.Witness != nil {
			msg = appendBytes(msg, terminalFieldWitnessKey, t.Witness.Key[:])
			msg = appendBytes(msg, terminalFieldWitnessValue, t.Witness.ValueDigest[:])
		}
		bz = appendBytes(bz, proofFieldTerminal, msg)
	}
	return bz
}

func appendTerminal(terminals *[]Terminal, bz []byte) error {
	var (
		t          Terminal
		w          Witness
		hasWitness bool
	)
	err := forEachField(bz, func(num protowire.Number, n uint64, v []byte) (err error) {
		switch num {
		case terminalFieldDepth:
			t.Depth, err = depthFromVarint(n)
		case terminalFieldCount:
			if n > uint64(1<<31) {
				return fmt.Errorf("terminal count %d out of range", n)
			}
			t.Count = int(n)
		case terminalFieldWitnessKey:
			w.Key, err = crypto.DigestFromBytes(v)
			hasWitness = true
		case terminalFieldWitnessValue:
			w.ValueDigest, err = crypto.DigestFromBytes(v)
			hasWitness = true
		}
		return
	})
	if hasWitness {
		t.Witness = &w
	}
	*terminals = append(*terminals, t)
	return err
}

func appendDigestField(digests *[]crypto.Digest, v []byte) error {
	d, err := crypto.DigestFromBytes(v)
	if err != nil {
		return err
	}
	*digests = append(*digests, d)
	return nil
}

func depthFromVarint(n uint64) (int, error) {
	if n > crypto.KeyBits {
		return 0, fmt.Errorf("depth %d out of range", n)
	}
	return int(n), nil
}

func appendVarint(bz []byte, num protowire.Number, v uint64) []byte {
	bz = protowire.AppendTag(bz, num, protowire.VarintType)
	return protowire.AppendVarint(bz, v)
}

func appendBytes(bz []byte, num protowire.Number, v []byte) []byte {
	bz = protowire.AppendTag(bz, num, protowire.BytesType)
	return protowire.AppendBytes(bz, v)
}

// forEachField() calls fn for every varint or length delimited field, skipping other wire types
func forEachField(bz []byte, fn func(num protowire.Number, varint uint64, bytes []byte) error) error {
	for len(bz) > 0 {
		num, typ, l := protowire.ConsumeTag(bz)
		if l < 0 {
			return protowire.ParseError(l)
		}
		bz = bz[l:]
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(bz)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, v, nil); err != nil {
				return err
			}
			l = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(bz)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, 0, v); err != nil {
				return err
			}
			l = m
		default:
			if l = protowire.ConsumeFieldValue(num, typ, bz); l < 0 {
				return protowire.ParseError(l)
			}
		}
		bz = bz[l:]
	}
	return nil
}
