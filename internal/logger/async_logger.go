// Copyright 2025 Google Inc. All Rights Reserved.
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

package logger

import (
	"fmt"
	"io"
	"os"
)

// AsyncLogger buffers writes to an underlying io.Writer (typically a
// lumberjack.Logger) on a bounded channel so that a slow or blocked disk
// never stalls the recovery pass's log calls. A full buffer drops the
// message rather than blocking.
type AsyncLogger struct {
	w    io.Writer
	ch   chan []byte
	done chan struct{}
}

// NewAsyncLogger starts a writer goroutine draining into w.
func NewAsyncLogger(w io.Writer, bufferSize int) *AsyncLogger {
	a := &AsyncLogger{
		w:    w,
		ch:   make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for b := range a.ch {
		if _, err := a.w.Write(b); err != nil {
			fmt.Fprintf(os.Stderr, "asynclogger: write error: %v\n", err)
		}
	}
}

// Write implements io.Writer. p is copied before being queued.
func (a *AsyncLogger) Write(p []byte) (int, error) {
	b := make([]byte, len(p))
	copy(b, p)
	select {
	case a.ch <- b:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close drains any queued messages and releases the writer goroutine. If
// the underlying writer implements io.Closer, it is closed too.
func (a *AsyncLogger) Close() error {
	close(a.ch)
	<-a.done
	if c, ok := a.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
