/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package wire

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	dialTimeout      = 5 * time.Second
	defaultIOTimeout = 10 * time.Second

	// maxFrameSize bounds a single frame; artwork data URIs are the
	// largest payloads.
	maxFrameSize = 4 << 20
)

var errFrameTooLarge = errors.New("frame exceeds size limit")

// Conn is a framed JSON connection to one device service.
type Conn struct {
	nc      net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

// Dial connects to a device service endpoint.
func Dial(ctx context.Context, address string, port int) (*Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}

	nc, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", address, port, err)
	}

	return NewConn(nc), nil
}

// NewConn wraps an established connection. Exposed for tests that pipe
// two ends together.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc:     nc,
		reader: bufio.NewReaderSize(nc, maxFrameSize),
	}
}

// Send writes one frame. Safe for concurrent use.
func (c *Conn) Send(f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.nc.SetWriteDeadline(time.Now().Add(defaultIOTimeout)); err != nil {
		return err
	}

	if _, err := c.nc.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Recv reads the next frame, blocking until one arrives or the
// connection fails. Only one goroutine may call Recv.
func (c *Conn) Recv() (*Frame, error) {
	if err := c.nc.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	return c.readFrame()
}

// RecvContext reads the next frame, honoring the context deadline.
func (c *Conn) RecvContext(ctx context.Context) (*Frame, error) {
	deadline := time.Now().Add(defaultIOTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	return c.readFrame()
}

// readFrame reads one newline-terminated frame. ReadSlice against the
// maxFrameSize-sized buffer caps the line length: a frame that overflows
// the buffer is rejected instead of growing without bound.
func (c *Conn) readFrame() (*Frame, error) {
	line, err := c.reader.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return nil, fmt.Errorf("read frame: %w", errFrameTooLarge)
		}

		return nil, fmt.Errorf("read frame: %w", err)
	}

	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	return &f, nil
}

// RoundTrip sends a frame and waits for the next reply. Callers must not
// interleave RoundTrip with a concurrent Recv loop.
func (c *Conn) RoundTrip(ctx context.Context, f *Frame) (*Frame, error) {
	if err := c.Send(f); err != nil {
		return nil, err
	}

	return c.RecvContext(ctx)
}

// Close terminates the connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
