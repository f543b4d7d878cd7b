// Package transport implements datagram ingress over multicast UDP and
// wire packet parsing, adapting the same socket setup and RTP unmarshal
// conventions the source SDR server uses for its own radiod multicast
// feed.
package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/cwsl/audioreceiver/session"
)

// MulticastReader implements server.DatagramReader over one or more
// multicast UDP sockets, multiplexed into a single channel of
// session.Datagram values.
type MulticastReader struct {
	conns []*net.UDPConn
	out   chan session.Datagram

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewMulticastReader opens one multicast socket per addr in addrs, all
// joined on iface (and the loopback interface, for local testing traffic),
// and starts a receive goroutine per socket feeding a shared, buffered
// datagram channel.
func NewMulticastReader(addrs []string, iface *net.Interface) (*MulticastReader, error) {
	r := &MulticastReader{
		out: make(chan session.Datagram, 4096),
	}

	for _, a := range addrs {
		udpAddr, err := net.ResolveUDPAddr("udp4", a)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("transport: resolve %s: %w", a, err)
		}
		conn, err := setupDataSocket(udpAddr, iface)
		if err != nil {
			r.closeAll()
			return nil, fmt.Errorf("transport: setup socket %s: %w", a, err)
		}
		r.conns = append(r.conns, conn)
	}

	r.running = true
	for i, conn := range r.conns {
		r.wg.Add(1)
		go r.receiveLoop(conn, addrs[i])
	}

	return r, nil
}

// setupDataSocket creates a UDP socket bound to addr with SO_REUSEPORT and
// SO_REUSEADDR set (so multiple processes, or repeated test runs, can bind
// the same multicast group), joined on iface and on loopback.
func setupDataSocket(addr *net.UDPAddr, iface *net.Interface) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("SO_REUSEPORT: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("SO_REUSEADDR: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	udpConn := conn.(*net.UDPConn)

	if err := udpConn.SetReadBuffer(1024 * 1024); err != nil {
		log.Printf("transport: warning: failed to set read buffer size: %v", err)
	}

	p := ipv4.NewPacketConn(udpConn)
	if iface != nil {
		if err := p.JoinGroup(iface, addr); err != nil {
			log.Printf("transport: warning: failed to join multicast group on %s: %v", iface.Name, err)
		}
	}
	if loopback, err := loopbackInterface(); err == nil && loopback != nil {
		if err := p.JoinGroup(loopback, addr); err != nil {
			log.Printf("transport: warning: failed to join multicast group on loopback: %v", err)
		}
	}

	return udpConn, nil
}

func loopbackInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			return &iface, nil
		}
	}
	return nil, nil
}

func (r *MulticastReader) receiveLoop(conn *net.UDPConn, destAddr string) {
	defer r.wg.Done()
	buf := make([]byte, 65536)

	for {
		n, srcAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			r.mu.Lock()
			running := r.running
			r.mu.Unlock()
			if !running {
				return
			}
			log.Printf("transport: read error on %s: %v", destAddr, err)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		dgm := session.Datagram{
			Dest:    destAddr,
			Source:  srcAddr.String(),
			Payload: payload,
		}
		select {
		case r.out <- dgm:
		default:
			log.Printf("transport: ingress channel full, dropping datagram from %s", srcAddr)
		}
	}
}

// Read implements server.DatagramReader: it drains whatever is currently
// buffered without blocking, matching the core's no-block-on-ingress tick
// contract.
func (r *MulticastReader) Read() (session.Datagram, bool) {
	select {
	case dgm := <-r.out:
		return dgm, true
	default:
		return session.Datagram{}, false
	}
}

// Close stops every receive goroutine and closes every socket.
func (r *MulticastReader) Close() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.closeAll()
	r.wg.Wait()
}

func (r *MulticastReader) closeAll() {
	for _, c := range r.conns {
		c.Close()
	}
}
