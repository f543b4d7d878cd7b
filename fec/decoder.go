// Package fec implements the block-level forward error correction decoder
// interface consumed by the audio pipeline's FEC stage, plus one concrete
// decoder grounded in interleaved XOR parity.
package fec

import "fmt"

// BlockDecoder reconstructs missing source symbols within one block from
// whichever source and repair symbols were actually received. sourceCount
// is the number of source symbols the block is defined to contain;
// repairCount is the number of repair symbols the sender is configured to
// produce per block (independent of how many of them actually arrived).
// source and repair are keyed by symbol index within the block. The
// returned map holds only the symbols the decoder managed to recover; a
// non-nil error alongside a non-empty map means partial recovery.
type BlockDecoder interface {
	Decode(sourceCount, repairCount int, source, repair map[int][]byte) (recovered map[int][]byte, err error)
}

// XORDecoder is an interleaved-parity decoder: source symbol i belongs to
// parity group i % repairCount, and repair symbol g is the byte-wise XOR
// of every source symbol in group g (short symbols are conceptually
// zero-padded to the longest symbol's length). A group with exactly one
// missing member recovers it from the group's own repair symbol. A group
// with two or more simultaneous losses, or whose repair symbol was itself
// lost, is not recoverable by this XOR stand-in regardless of how many
// other repair symbols survived — unlike a real LDPC/Reed-Solomon
// decoder, which recovers any loss pattern up to its repair count, this
// stand-in's recovery envelope depends on how losses fall across groups.
type XORDecoder struct{}

// Decode implements BlockDecoder.
func (XORDecoder) Decode(sourceCount, repairCount int, source, repair map[int][]byte) (map[int][]byte, error) {
	if repairCount < 1 {
		repairCount = 1
	}

	missing := make([]int, 0)
	maxLen := 0
	for i := 0; i < sourceCount; i++ {
		if s, ok := source[i]; ok {
			if len(s) > maxLen {
				maxLen = len(s)
			}
			continue
		}
		missing = append(missing, i)
	}
	for _, r := range repair {
		if len(r) > maxLen {
			maxLen = len(r)
		}
	}

	if len(missing) == 0 {
		return nil, nil
	}
	if len(repair) == 0 {
		return nil, fmt.Errorf("fec: %d source symbols missing and no repair symbols available", len(missing))
	}

	groupMissing := make(map[int][]int, repairCount)
	for _, i := range missing {
		g := i % repairCount
		groupMissing[g] = append(groupMissing[g], i)
	}

	recovered := make(map[int][]byte)
	var unsolved []int
	for g, members := range groupMissing {
		if len(members) != 1 {
			unsolved = append(unsolved, members...)
			continue
		}
		parity, ok := repair[g]
		if !ok {
			unsolved = append(unsolved, members...)
			continue
		}

		acc := make([]byte, maxLen)
		copy(acc, parity)
		for i := 0; i < sourceCount; i++ {
			if i%repairCount != g {
				continue
			}
			s, ok := source[i]
			if !ok {
				continue // the group's one missing member
			}
			for j, b := range s {
				acc[j] ^= b
			}
		}
		recovered[members[0]] = acc
	}

	if len(recovered) == 0 {
		return nil, fmt.Errorf("fec: %d source symbols missing across %d parity groups, none recoverable by interleaved XOR", len(missing), repairCount)
	}
	if len(unsolved) > 0 {
		return recovered, fmt.Errorf("fec: %d of %d missing source symbols left unrecovered (multiple losses in one parity group, or a lost repair symbol)", len(unsolved), len(missing))
	}
	return recovered, nil
}
