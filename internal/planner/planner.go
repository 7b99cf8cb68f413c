// Package planner computes, from a torrent's piece length and an absolute byte offset,
// which pieces must be downloaded to recover a single embedded file's payload. It is
// pure and stateless — no I/O, no torrent-engine handle — so every property in spec §8
// can be checked directly against it.
package planner

import "sort"

// PriorityNone and PriorityHigh mirror the 0..7 range the torrent driver (§4.3) accepts;
// the planner only ever needs "don't download" and "download first."
const (
	PriorityNone = 0
	PriorityHigh = 7
)

// minHeaderLookback is the smallest number of bytes before the target offset that must
// be available in-buffer for the backward header scan to have a chance of landing on a
// TAR block start or the tail of a ZIP header — see spec §4.2.
const minHeaderLookback = 512

// FirstPiece returns the index of the piece containing the byte at offset.
func FirstPiece(offset, pieceLength int64) int64 {
	return offset / pieceLength
}

// PieceStart returns the absolute offset at which piece index begins.
func PieceStart(index, pieceLength int64) int64 {
	return index * pieceLength
}

// NeedsPreviousPiece reports whether the piece preceding offset's piece must also be
// fetched so a backward header scan has 512 bytes of lookback available.
func NeedsPreviousPiece(offset, pieceLength int64) bool {
	return offset%pieceLength < minHeaderLookback
}

// LeadingPieces returns the set of pieces that must be fetched before container framing
// can run, in ascending order. If the target offset sits within the first 512 bytes of
// its piece, the previous piece is included so the backward scan has somewhere to land;
// otherwise the next piece is fetched eagerly so a full TAR block or a reasonably sized
// ZIP header+name is guaranteed to be present.
func LeadingPieces(offset, pieceLength, numPieces int64) []int64 {
	first := FirstPiece(offset, pieceLength)

	var pieces []int64
	if NeedsPreviousPiece(offset, pieceLength) && first > 0 {
		pieces = append(pieces, first-1, first)
	} else {
		pieces = append(pieces, first)
		if first+1 < numPieces {
			pieces = append(pieces, first+1)
		}
	}
	sort.Slice(pieces, func(i, j int) bool { return pieces[i] < pieces[j] })
	return pieces
}

// LastPiece returns the index of the piece containing the last byte of the payload
// (endOffset is exclusive, so the last included byte is endOffset-1).
func LastPiece(endOffset, pieceLength int64) int64 {
	if endOffset == 0 {
		return 0
	}
	return (endOffset - 1) / pieceLength
}

// TrailingPieces returns the pieces strictly after the leading set that still need
// fetching to cover [leadingLast+1, lastPiece], in ascending order. Call only after
// container framing has determined lastPiece from the parsed header.
func TrailingPieces(leading []int64, lastPiece int64) []int64 {
	leadingLast := int64(-1)
	for _, p := range leading {
		if p > leadingLast {
			leadingLast = p
		}
	}
	var trailing []int64
	for p := leadingLast + 1; p <= lastPiece; p++ {
		trailing = append(trailing, p)
	}
	return trailing
}

// ZeroedPriorities returns a priority slice of length numPieces with every piece set to
// PriorityNone, the planner's mandatory first step before requesting any piece for a
// byte-range job (spec §4.2: "zeroes priority for every piece of the torrent").
func ZeroedPriorities(numPieces int) []int {
	p := make([]int, numPieces)
	return p
}

// RaisePriority sets priorities[i] to PriorityHigh for every index in pieces.
func RaisePriority(priorities []int, pieces []int64) {
	for _, idx := range pieces {
		if idx >= 0 && int(idx) < len(priorities) {
			priorities[idx] = PriorityHigh
		}
	}
}

// RequiredPieces returns the minimal, contiguous, ascending set of piece indices needed
// to decode the payload once lastPiece is known — the set spec §8's minimality property
// is checked against.
func RequiredPieces(offset, pieceLength, numPieces, lastPiece int64) []int64 {
	leading := LeadingPieces(offset, pieceLength, numPieces)
	leadingLast := leading[len(leading)-1]
	all := append([]int64(nil), leading...)
	for p := leadingLast + 1; p <= lastPiece; p++ {
		all = append(all, p)
	}
	first := FirstPiece(offset, pieceLength)
	// Drop any leading piece below first-1 (shouldn't happen) and anything past lastPiece.
	out := all[:0]
	for _, p := range all {
		if p <= lastPiece && p >= first-1 {
			out = append(out, p)
		}
	}
	return out
}

// AssemblePayload concatenates piece bytes in ascending index order regardless of the
// order pieces completed in, then returns the [dataStart, dataEnd) slice of the combined
// buffer (all three offsets absolute; the first piece in order begins at firstPieceStart).
func AssemblePayload(pieces map[int64][]byte, order []int64, firstPieceStart, dataStart, dataEnd int64) []byte {
	var combined []byte
	for _, idx := range order {
		combined = append(combined, pieces[idx]...)
	}
	relStart := dataStart - firstPieceStart
	relEnd := dataEnd - firstPieceStart
	if relStart < 0 || relEnd > int64(len(combined)) || relStart > relEnd {
		return nil
	}
	return combined[relStart:relEnd]
}
