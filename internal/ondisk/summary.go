// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ondisk

import (
	"encoding/binary"
	"fmt"
)

// SummaryEntrySize is the byte length of one segment summary entry.
const SummaryEntrySize = 4 + 2 + 1

// SummaryEntry is a single segment-summary-area record: the reverse map
// from a main-area block back to the node that owns it (spec.md §3, §6).
// Collision resolution walks these to tell a genuine rewrite of the same
// logical slot from two different dnodes racing for the same block.
type SummaryEntry struct {
	Nid       uint32
	OfsInNode uint16
	Version   uint8
}

// DecodeSummaryEntry reads one SummaryEntrySize-byte record.
func DecodeSummaryEntry(b []byte) (SummaryEntry, error) {
	if len(b) < SummaryEntrySize {
		return SummaryEntry{}, fmt.Errorf("buffer too small for summary entry: %d bytes", len(b))
	}
	return SummaryEntry{
		Nid:       binary.LittleEndian.Uint32(b[0:4]),
		OfsInNode: binary.LittleEndian.Uint16(b[4:6]),
		Version:   b[6],
	}, nil
}

// EncodeSummaryEntry writes s into the first SummaryEntrySize bytes of b.
func EncodeSummaryEntry(b []byte, s SummaryEntry) error {
	if len(b) < SummaryEntrySize {
		return fmt.Errorf("buffer too small for summary entry: %d bytes", len(b))
	}
	binary.LittleEndian.PutUint32(b[0:4], s.Nid)
	binary.LittleEndian.PutUint16(b[4:6], s.OfsInNode)
	b[6] = s.Version
	return nil
}

// DecodeSummaryBlock splits a block-sized summary-area buffer into its
// entries, in order.
func DecodeSummaryBlock(block []byte) ([]SummaryEntry, error) {
	count := len(block) / SummaryEntrySize
	entries := make([]SummaryEntry, 0, count)
	for i := 0; i < count; i++ {
		off := i * SummaryEntrySize
		e, err := DecodeSummaryEntry(block[off : off+SummaryEntrySize])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
