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

package cmd

import (
	"fmt"

	"github.com/rollforward/rollforward/internal/blockdev"
	"github.com/rollforward/rollforward/internal/checkpoint"
	"github.com/rollforward/rollforward/internal/datarepair"
	"github.com/rollforward/rollforward/internal/dirops"
	"github.com/rollforward/rollforward/internal/dirrepair"
	"github.com/rollforward/rollforward/internal/nat"
	"github.com/rollforward/rollforward/internal/quota"
	"github.com/rollforward/rollforward/internal/segment"
)

// Collaborators is everything a concrete filesystem driver must supply
// to run recovery against a real device: the NAT, segment allocator,
// quota subsystem, and directory layer (spec.md §1, §6 place these out
// of scope for this module), plus the superblock and scratch-page-cache
// contracts the orchestrator drives at teardown, the directory hash
// function, and the page-kind-specific repair hooks (spec.md §4.4
// steps 1-2).
type Collaborators struct {
	NodeLayer  nat.NodeLayer
	Segment    segment.Allocator
	Quota      quota.Manager
	Dir        dirops.Directory
	Superblock checkpoint.Superblock
	Scratch    checkpoint.ScratchPageCache
	DirHash    dirrepair.HashFunc
	Hooks      datarepair.Hooks

	// CheckpointVersion is the just-mounted checkpoint's version (spec.md
	// §4.3), the bound a recovered page's recoverability is judged
	// against.
	CheckpointVersion uint64
}

// CollaboratorFactory builds the out-of-scope collaborators for an
// opened device. A real mount path sets NewCollaborators to one of
// these before calling Execute; this module cannot synthesize a NAT,
// segment allocator, quota subsystem, or directory layer itself, since
// each is a concrete on-disk structure this package never parses.
type CollaboratorFactory func(dev *blockdev.Device) (Collaborators, error)

// NewCollaborators is the CLI's sole extension point for the
// collaborators spec.md §1 places out of scope. The default always
// fails with a message naming exactly what must be wired, rather than
// silently no-opping against a device it cannot actually repair.
var NewCollaborators CollaboratorFactory = func(dev *blockdev.Device) (Collaborators, error) {
	return Collaborators{}, fmt.Errorf(
		"cmd.NewCollaborators is unset: a real deployment must provide " +
			"concrete nat.NodeLayer, segment.Allocator, quota.Manager, and " +
			"dirops.Directory implementations plus a superblock/scratch-cache " +
			"pair before rollforward recover/check can run against a live device")
}
