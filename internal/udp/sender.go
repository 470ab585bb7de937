package udp

import (
	"fmt"
	"net"
)

// DefaultHostPort is where the host listens for node messages.
const DefaultHostPort = 12345

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Sender writes datagrams to a single host.
type Sender struct {
	dest string
	conn udpConn
}

func NewSender(dest string) (*Sender, error) {
	return newSender(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newSender(dest string, resolve resolveFunc, dial dialFunc) (*Sender, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Sender{dest: dest, conn: conn}, nil
}

func (s *Sender) Dest() string { return s.dest }

func (s *Sender) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if s.conn == nil {
		return fmt.Errorf("udp: sender is closed")
	}
	_, err := s.conn.Write(payload)
	return err
}

func (s *Sender) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
