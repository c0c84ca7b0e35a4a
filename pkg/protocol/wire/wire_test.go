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
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/castbridge/pkg/protocol"
)

func pipePair() (*Conn, *Conn) {
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}

func TestRoundTrip(t *testing.T) {
	client, server := pipePair()

	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	go func() {
		f, err := server.Recv()
		if err != nil {
			return
		}

		_ = server.Send(&Frame{Type: TypeAck, Command: f.Command, OK: true})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := client.RoundTrip(ctx, &Frame{Type: TypeCommand, Command: "select"})
	require.NoError(t, err)
	assert.Equal(t, TypeAck, resp.Type)
	assert.Equal(t, "select", resp.Command)
	assert.True(t, resp.OK)
}

func TestRecvRejectsOversizedFrame(t *testing.T) {
	client, server := pipePair()

	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	// A peer that streams bytes without ever terminating the line must
	// be cut off at the frame cap, not buffered indefinitely.
	go func() {
		chunk := make([]byte, 64*1024)

		for written := 0; written <= maxFrameSize; written += len(chunk) {
			if _, err := server.nc.Write(chunk); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.RecvContext(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errFrameTooLarge)
}

func TestRecvContextTimesOut(t *testing.T) {
	client, server := pipePair()

	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.RecvContext(ctx)
	assert.Error(t, err)
}

// scriptPairing runs the device side of a handshake: pair_start answers
// with pin_required, pair_verify accepts exactly one PIN.
func scriptPairing(t *testing.T, server *Conn, pin, token string) {
	t.Helper()

	go func() {
		for {
			f, err := server.Recv()
			if err != nil {
				return
			}

			switch f.Type {
			case TypePairStart:
				_ = server.Send(&Frame{Type: TypePairResult, PinRequired: true})
			case TypePairVerify:
				if f.PIN != pin {
					_ = server.Send(&Frame{Type: TypePairResult, Code: CodePinRejected, Err: "wrong pin"})
					continue
				}

				_ = server.Send(&Frame{Type: TypePairResult, OK: true, Token: token})
			}
		}
	}()
}

func TestPairingHandshake(t *testing.T) {
	client, server := pipePair()

	defer func() {
		_ = client.Close()
		_ = server.Close()
	}()

	scriptPairing(t, server, "1234", "session-token")

	p := &Pairing{conn: client, service: "companion"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pinRequired, err := p.Begin(ctx)
	require.NoError(t, err)
	assert.True(t, pinRequired)

	// A rejected PIN keeps the handshake open for a retry.
	_, err = p.Finish(ctx, "0000")
	require.ErrorIs(t, err, protocol.ErrPinRejected)

	token, err := p.Finish(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, "session-token", token)
}

// fakeDevice serves the session protocol on a real listener: one auth
// exchange, then commands. Supported commands are acked, everything else
// errors with code unsupported.
func fakeDevice(t *testing.T, token string, pushes []Playing) (address string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}

		dc := NewConn(nc)

		f, err := dc.Recv()
		if err != nil || f.Type != TypeAuth {
			return
		}

		if f.Token != token {
			_ = dc.Send(&Frame{Type: TypeAuthResult, Code: CodeAuthFailed, Err: "invalid token"})
			_ = dc.Close()

			return
		}

		_ = dc.Send(&Frame{Type: TypeAuthResult, OK: true})

		for i := range pushes {
			_ = dc.Send(&Frame{Type: TypeNowPlaying, Playing: &pushes[i]})
		}

		for {
			f, err := dc.Recv()
			if err != nil {
				return
			}

			switch f.Type {
			case TypeCommand:
				if f.Command == "select" {
					_ = dc.Send(&Frame{Type: TypeAck, OK: true})
					continue
				}

				_ = dc.Send(&Frame{Type: TypeError, Code: CodeUnsupported, Err: "unsupported command"})
			case TypeGetPower:
				_ = dc.Send(&Frame{Type: TypePower, OK: true, Power: "on"})
			default:
				_ = dc.Send(&Frame{Type: TypeError, Code: CodeUnsupported, Err: "unsupported request"})
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)

	return addr.IP.String(), addr.Port
}

func TestOpenSessionAuthRejected(t *testing.T) {
	address, port := fakeDevice(t, "good-token", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := OpenSession(ctx, address, port, "companion", "bad-token")
	assert.ErrorIs(t, err, protocol.ErrAuthRejected)
}

func TestSessionRequestsAndPushes(t *testing.T) {
	address, port := fakeDevice(t, "good-token", []Playing{
		{Title: "Severance", DeviceState: "playing"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := OpenSession(ctx, address, port, "companion", "good-token")
	require.NoError(t, err)

	defer func() { _ = s.Close() }()

	// The pushed update arrives independently of request traffic.
	select {
	case np := <-s.Updates():
		assert.Equal(t, "Severance", np.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pushed update")
	}

	resp, err := s.Request(ctx, &Frame{Type: TypeCommand, Command: "select"})
	require.NoError(t, err)
	assert.Equal(t, TypeAck, resp.Type)

	resp, err = s.Request(ctx, &Frame{Type: TypeGetPower})
	require.NoError(t, err)
	assert.Equal(t, "on", resp.Power)

	_, err = s.Request(ctx, &Frame{Type: TypeCommand, Command: "backflip"})
	assert.ErrorIs(t, err, protocol.ErrUnsupportedCommand)
}

func TestSessionClosedRequestsFail(t *testing.T) {
	address, port := fakeDevice(t, "good-token", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := OpenSession(ctx, address, port, "companion", "good-token")
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = s.Request(ctx, &Frame{Type: TypeCommand, Command: "select"})
	assert.ErrorIs(t, err, protocol.ErrSessionClosed)

	// The push stream is closed too.
	select {
	case _, open := <-s.Updates():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("updates channel not closed")
	}
}
