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

package cfg

const (
	// Logging-level constants

	TRACE   string = "TRACE"
	DEBUG   string = "DEBUG"
	INFO    string = "INFO"
	WARNING string = "WARNING"
	ERROR   string = "ERROR"
	OFF     string = "OFF"
)

const (
	// DefaultReadAheadMinBlocks is the read-ahead window floor (§4.3 step 7).
	DefaultReadAheadMinBlocks uint32 = 1
	// DefaultReadAheadMaxBlocks is the read-ahead window cap (§4.3 step 7).
	DefaultReadAheadMaxBlocks uint32 = 128
	// DefaultRetryBound is the fault-injection retry bound for case (d)'s
	// reserve_new_block loop. Zero means unbounded, matching the source.
	DefaultRetryBound uint32 = 0
)
