package main

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// maxDatagram covers the largest Logged ADIF message WSJT-X sends.
const maxDatagram = 64 * 1024

// udpSource is a wsjtx.Source over a bound UDP socket. Each Poll waits at
// most wait for one datagram so the poller tick stays on schedule.
type udpSource struct {
	conn *net.UDPConn
	wait time.Duration
	buf  []byte
}

func listenUDP(addr string, wait time.Duration) (*udpSource, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if wait <= 0 {
		wait = 5 * time.Millisecond
	}
	return &udpSource{conn: conn, wait: wait, buf: make([]byte, maxDatagram)}, nil
}

func (s *udpSource) Poll() ([]byte, bool, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.wait)); err != nil {
		return nil, false, err
	}
	n, _, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := make([]byte, n)
	copy(out, s.buf[:n])
	return out, true, nil
}

func (s *udpSource) Addr() net.Addr { return s.conn.LocalAddr() }

func (s *udpSource) Close() error { return s.conn.Close() }
