/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transport provides the byte-stream connections a Session rides
// on top of: TCP, Unix domain sockets, and the TLS and local-compression
// layers that wrap either one, per spec §4.1/§6.
package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	jerrors "github.com/juju/errors"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Conn is the byte-stream abstraction a Session reads/writes packets
// over. It is satisfied by *net.TCPConn, *net.UnixConn, *tls.Conn, and the
// compressingConn wrapper in this package.
type Conn interface {
	net.Conn
}

// TLSMode selects how (and whether) TLS is layered on top of the raw
// transport, per spec §6's SSL Mode DSN key.
type TLSMode int

const (
	TLSNone TLSMode = iota
	TLSPreferred
	TLSRequired
	TLSVerifyCA
	TLSVerifyFull
)

// Dialer opens a Conn to addr. Grounded on the teacher's connection setup
// in server/net/connection.go, generalized from getty's session-accept
// direction to the client-dial direction and stripped of the getty
// framework dependency itself (AlexStocks/getty, justified as dropped in
// the design ledger).
type Dialer struct {
	Network      string // "tcp" or "unix"
	TLSMode      TLSMode
	TLSConfig    *tls.Config
	ConnTimeout  time.Duration
}

// Dial opens a connection to addr, establishing TLS immediately when
// TLSMode is TLSRequired/TLSVerifyCA/TLSVerifyFull (TLSPreferred is
// upgraded later, after the server advertises ClientSSL support, by
// calling UpgradeTLS on the returned Conn).
func (d *Dialer) Dial(ctx context.Context, addr string) (Conn, error) {
	network := d.Network
	if network == "" {
		network = "tcp"
	}

	if network == "unix" {
		if err := checkUnixSocket(addr); err != nil {
			return nil, errkind.NewTransportError(jerrors.Trace(err))
		}
	}

	nd := net.Dialer{Timeout: d.ConnTimeout}
	conn, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, errkind.NewTransportError(jerrors.Trace(err))
	}

	if d.TLSMode == TLSRequired || d.TLSMode == TLSVerifyCA || d.TLSMode == TLSVerifyFull {
		return UpgradeTLS(conn, d.TLSConfig)
	}
	return &timeoutConn{Conn: conn}, nil
}

// UpgradeTLS wraps conn in a TLS client connection and completes the
// handshake. Dial calls it before any MySQL packet is exchanged when its
// TLSMode is Required/VerifyCA/VerifyFull; Session.handshake calls it
// mid-protocol, right after the SSL Request packet and before the
// Handshake Response, which is why this is exposed as a standalone
// function rather than folded into Dial.
func UpgradeTLS(conn net.Conn, cfg *tls.Config) (Conn, error) {
	tc := tls.Client(conn, cfg)
	if err := tc.HandshakeContext(context.Background()); err != nil {
		return nil, errkind.NewTLSError(jerrors.Trace(err))
	}
	return &timeoutConn{Conn: tc}, nil
}

// timeoutConn counts the bytes read from and written to the connection,
// after the teacher's mysqlConn readBytes/writeBytes counters; it keeps
// no packet counts. ReadBytes/WriteBytes report the totals.
type timeoutConn struct {
	net.Conn
	readBytes  uint64
	writeBytes uint64
}

func (c *timeoutConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	atomic.AddUint64(&c.readBytes, uint64(n))
	return n, err
}

func (c *timeoutConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	atomic.AddUint64(&c.writeBytes, uint64(n))
	return n, err
}

// ReadBytes reports the cumulative bytes read from this connection.
func (c *timeoutConn) ReadBytes() uint64 { return atomic.LoadUint64(&c.readBytes) }

// WriteBytes reports the cumulative bytes written to this connection.
func (c *timeoutConn) WriteBytes() uint64 { return atomic.LoadUint64(&c.writeBytes) }
