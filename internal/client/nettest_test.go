package client

import (
	"net"
	"os"
	"sync"
	"time"
)

// fakeNetwork/fakeTransport mirror the server package's test transport:
// an in-process, channel-backed stand-in for net.PacketConn so client
// and server tests can run real protocol traffic between them without
// binding a UDP socket. shouldDrop optionally drops the outbound
// packets it selects, for simulating a lossy transport.
type fakeNetwork struct {
	mu    sync.Mutex
	socks map[string]*fakeTransport
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{socks: make(map[string]*fakeTransport)}
}

type packet struct {
	from net.Addr
	data []byte
}

type fakeTransport struct {
	addr    net.Addr
	network *fakeNetwork
	inbox   chan packet

	mu       sync.Mutex
	deadline time.Time

	// shouldDrop, if set, is consulted for every outbound packet; a
	// true return drops it silently, simulating lossy delivery.
	shouldDrop func(p []byte) bool
}

// resolve returns the net.Addr for addrStr without registering a new
// socket, for callers that only need to address an existing peer.
func (n *fakeNetwork) resolve(addrStr string) net.Addr {
	a, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		panic(err)
	}
	return a
}

func (n *fakeNetwork) socket(addrStr string) *fakeTransport {
	a, err := net.ResolveUDPAddr("udp", addrStr)
	if err != nil {
		panic(err)
	}
	tr := &fakeTransport{addr: a, network: n, inbox: make(chan packet, 1024)}
	n.mu.Lock()
	n.socks[addrStr] = tr
	n.mu.Unlock()
	return tr
}

func (t *fakeTransport) SetReadDeadline(dl time.Time) error {
	t.mu.Lock()
	t.deadline = dl
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) ReadFrom(p []byte) (int, net.Addr, error) {
	t.mu.Lock()
	dl := t.deadline
	t.mu.Unlock()

	var timeout <-chan time.Time
	if !dl.IsZero() {
		d := time.Until(dl)
		if d < 0 {
			d = 0
		}
		timeout = time.After(d)
	}

	select {
	case pkt := <-t.inbox:
		n := copy(p, pkt.data)
		return n, pkt.from, nil
	case <-timeout:
		return 0, nil, os.ErrDeadlineExceeded
	}
}

func (t *fakeTransport) WriteTo(p []byte, addr net.Addr) (int, error) {
	t.mu.Lock()
	drop := t.shouldDrop
	t.mu.Unlock()
	if drop != nil && drop(p) {
		return len(p), nil
	}

	t.network.mu.Lock()
	dst, ok := t.network.socks[addr.String()]
	t.network.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	buf := append([]byte(nil), p...)
	select {
	case dst.inbox <- packet{from: t.addr, data: buf}:
	default:
	}
	return len(p), nil
}

func (t *fakeTransport) Close() error { return nil }
