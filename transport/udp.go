package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxDatagramSize bounds the receive buffer. Media fragments stay
// under the path MTU; anything larger is a protocol violation.
const maxDatagramSize = 2048

// UDPTransport sends and receives framed datagrams over a UDP socket.
type UDPTransport struct {
	conn       net.PacketConn
	listenAddr net.Addr
	maxPayload int
	handlers   map[PacketType]PacketHandler
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewUDPTransport binds a UDP socket and starts the read loop.
// maxPayload bounds outgoing datagrams (packet type byte included);
// zero selects maxDatagramSize.
func NewUDPTransport(listenAddr string, maxPayload int) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSocketFailure, err)
	}
	if maxPayload <= 0 {
		maxPayload = maxDatagramSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		maxPayload: maxPayload,
		handlers:   make(map[PacketType]PacketHandler),
		ctx:        ctx,
		cancel:     cancel,
	}

	t.wg.Add(1)
	go t.readLoop()

	logrus.WithFields(logrus.Fields{
		"function":    "NewUDPTransport",
		"local_addr":  t.listenAddr.String(),
		"max_payload": maxPayload,
	}).Info("UDP transport listening")

	return t, nil
}

// RegisterHandler sets the handler for a packet type.
func (t *UDPTransport) RegisterHandler(packetType PacketType, handler PacketHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[packetType] = handler
}

// Send serializes and transmits a packet.
func (t *UDPTransport) Send(packet *Packet, addr net.Addr) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}
	if len(data) > t.maxPayload {
		return fmt.Errorf("%w: %d > %d bytes", ErrPathMTUExceeded, len(data), t.maxPayload)
	}

	if _, err := t.conn.WriteTo(data, addr); err != nil {
		return fmt.Errorf("%w: %v", ErrSocketFailure, err)
	}
	return nil
}

// LocalAddr returns the bound local address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.listenAddr
}

// Overhead reports the packet type byte prepended to each datagram.
func (t *UDPTransport) Overhead() int {
	return 1
}

// Close stops the read loop and closes the socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// readLoop reads datagrams until the transport is closed. Short read
// deadlines keep cancellation latency bounded.
func (t *UDPTransport) readLoop() {
	defer t.wg.Done()
	buffer := make([]byte, maxDatagramSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := t.conn.ReadFrom(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if t.ctx.Err() != nil {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.readLoop",
				"error":    err.Error(),
			}).Warn("UDP read failed")
			continue
		}

		packet, err := ParsePacket(buffer[:n])
		if err != nil {
			continue
		}
		// Handlers may outlive this buffer iteration.
		data := make([]byte, len(packet.Data))
		copy(data, packet.Data)
		packet.Data = data

		t.dispatch(packet, addr)
	}
}

func (t *UDPTransport) dispatch(packet *Packet, addr net.Addr) {
	t.mu.RLock()
	handler, exists := t.handlers[packet.PacketType]
	t.mu.RUnlock()

	if exists {
		go func() {
			if err := handler(packet, addr); err != nil {
				logrus.WithFields(logrus.Fields{
					"function":    "UDPTransport.dispatch",
					"packet_type": packet.PacketType,
					"error":       err.Error(),
				}).Debug("Packet handler failed")
			}
		}()
	}
}
