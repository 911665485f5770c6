// Package listener implements the UDP transport the Packet Dispatcher sits
// behind: one socket, fanned out to a fixed pool of worker goroutines so
// that no two packets from the same exporter are ever processed
// concurrently, per spec.md §5's single-threaded-per-exporter rule.
package listener

import (
	"hash/fnv"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"ipfixcore/internal/metrics"
)

const (
	// DefaultPort is the IANA-assigned IPFIX collector port.
	DefaultPort       = 4739
	maxPacketSize     = 65535
	defaultRecvBuffer = 4 * 1024 * 1024
	defaultQueueDepth = 1024
)

// Handler processes one decoded UDP datagram. Implementations (the
// Dispatcher) must not retain data beyond the call.
type Handler func(src netip.Addr, data []byte, receivedAt time.Time)

// UDPListener receives IPFIX datagrams on one UDP socket and shards them
// across a fixed worker pool keyed by source address, so every packet
// from a given exporter is always handled by the same goroutine.
type UDPListener struct {
	conn *net.UDPConn
	port int

	handler Handler
	workers []chan packet
	stop    chan struct{}

	metrics *metrics.Metrics
	log     *zap.Logger
}

type packet struct {
	src        netip.Addr
	data       []byte
	receivedAt time.Time
}

// New returns a UDPListener bound to port (DefaultPort if zero), fanning
// received datagrams out across workerCount goroutines (at least 1) that
// each call handler.
func New(port, workerCount int, handler Handler, m *metrics.Metrics, log *zap.Logger) *UDPListener {
	if port == 0 {
		port = DefaultPort
	}
	if workerCount < 1 {
		workerCount = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	l := &UDPListener{
		port:    port,
		handler: handler,
		workers: make([]chan packet, workerCount),
		stop:    make(chan struct{}),
		metrics: m,
		log:     log,
	}
	for i := range l.workers {
		l.workers[i] = make(chan packet, defaultQueueDepth)
	}
	return l
}

// Start opens the UDP socket and launches the read loop and worker pool.
func (l *UDPListener) Start() error {
	addr := &net.UDPAddr{Port: l.port, IP: net.IPv6zero}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	if err := conn.SetReadBuffer(defaultRecvBuffer); err != nil {
		l.log.Warn("could not set UDP receive buffer size", zap.Error(err))
	}
	l.conn = conn

	for i := range l.workers {
		go l.runWorker(l.workers[i])
	}
	go l.readLoop()
	return nil
}

func (l *UDPListener) readLoop() {
	buf := make([]byte, maxPacketSize)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.stop:
				return
			default:
				l.metrics.UDPErrorsTotal.Inc()
				continue
			}
		}
		l.metrics.UDPPacketsTotal.Inc()
		l.metrics.UDPPacketBytes.Add(float64(n))

		data := make([]byte, n)
		copy(data, buf[:n])
		src, _ := netip.AddrFromSlice(addr.IP)
		src = src.Unmap()

		shard := l.workers[shardOf(src, len(l.workers))]
		select {
		case shard <- packet{src: src, data: data, receivedAt: time.Now()}:
		default:
			l.metrics.DroppedRecords.Inc()
			l.log.Warn("worker queue full, dropping packet", zap.Stringer("source", src))
		}
	}
}

func (l *UDPListener) runWorker(in <-chan packet) {
	for {
		select {
		case <-l.stop:
			return
		case p := <-in:
			l.handler(p.src, p.data, p.receivedAt)
		}
	}
}

// shardOf hashes an exporter's source address to a worker index, so every
// packet it ever sends lands on the same goroutine for the listener's
// lifetime.
func shardOf(src netip.Addr, workerCount int) int {
	h := fnv.New32a()
	b := src.As16()
	h.Write(b[:])
	return int(h.Sum32() % uint32(workerCount))
}

// Stop closes the socket and halts all workers.
func (l *UDPListener) Stop() {
	close(l.stop)
	if l.conn != nil {
		l.conn.Close()
	}
}

// Port returns the bound listening port.
func (l *UDPListener) Port() int {
	return l.port
}
