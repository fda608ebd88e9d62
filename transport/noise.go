package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// noiseNonceSize is the explicit per-datagram nonce prepended to every
// encrypted packet. Implicit counters would desynchronize on the first
// lost datagram; carrying the counter on the wire keeps decryption
// working under loss and reordering.
const noiseNonceSize = 8

// noiseAuthTagSize is the ChaCha20-Poly1305 tag appended to every
// ciphertext.
const noiseAuthTagSize = 16

var noiseCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// noiseSession tracks one peer's handshake and cipher states.
type noiseSession struct {
	mu        sync.Mutex
	handshake *noise.HandshakeState
	send      *noise.CipherState
	recv      *noise.CipherState
	peerAddr  net.Addr
	initiator bool
	complete  bool
	sendNonce uint64
}

// NoiseTransport wraps a Transport with Noise-IK encryption.
//
// Handshake packets travel in the clear; everything else is encrypted
// with an explicit nonce so individual datagram loss never breaks the
// cipher stream. Media submitted before the handshake completes is
// dropped, which the jitter-tolerant pipeline above absorbs the same
// way it absorbs network loss.
type NoiseTransport struct {
	underlying Transport
	staticKey  noise.DHKey

	sessionsMu sync.RWMutex
	sessions   map[string]*noiseSession

	peerKeysMu sync.RWMutex
	peerKeys   map[string][]byte

	handlersMu sync.RWMutex
	handlers   map[PacketType]PacketHandler
}

// NewNoiseTransport wraps an existing transport with Noise-IK.
// staticPrivKey is the long-term Curve25519 private key (32 bytes);
// the public half is re-derived from it.
func NewNoiseTransport(underlying Transport, staticPrivKey []byte) (*NoiseTransport, error) {
	if underlying == nil {
		return nil, errors.New("underlying transport cannot be nil")
	}
	if len(staticPrivKey) != 32 {
		return nil, fmt.Errorf("static private key must be 32 bytes, got %d", len(staticPrivKey))
	}

	pub, err := curve25519.X25519(staticPrivKey, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	nt := &NoiseTransport{
		underlying: underlying,
		staticKey: noise.DHKey{
			Private: append([]byte(nil), staticPrivKey...),
			Public:  pub,
		},
		sessions: make(map[string]*noiseSession),
		peerKeys: make(map[string][]byte),
		handlers: make(map[PacketType]PacketHandler),
	}

	underlying.RegisterHandler(PacketNoiseHandshake, nt.handleHandshakePacket)
	underlying.RegisterHandler(PacketNoiseMessage, nt.handleEncryptedPacket)

	logrus.WithFields(logrus.Fields{
		"function":   "NewNoiseTransport",
		"public_key": fmt.Sprintf("%x", pub[:8]),
	}).Info("Noise transport created")

	return nt, nil
}

// PublicKey returns the transport's static Curve25519 public key.
func (nt *NoiseTransport) PublicKey() []byte {
	return append([]byte(nil), nt.staticKey.Public...)
}

// AddPeer registers a peer's static public key so handshakes can be
// initiated toward that address.
func (nt *NoiseTransport) AddPeer(addr net.Addr, publicKey []byte) error {
	if len(publicKey) != 32 {
		return fmt.Errorf("public key must be 32 bytes, got %d", len(publicKey))
	}
	allZero := true
	for _, b := range publicKey {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return errors.New("invalid public key: all zeros")
	}

	nt.peerKeysMu.Lock()
	nt.peerKeys[addr.String()] = append([]byte(nil), publicKey...)
	nt.peerKeysMu.Unlock()
	return nil
}

// Send encrypts and transmits a packet. Handshake packets pass through
// unencrypted; media packets are dropped with ErrNoiseHandshakePending
// until the session is established.
func (nt *NoiseTransport) Send(packet *Packet, addr net.Addr) error {
	if packet.PacketType == PacketNoiseHandshake {
		return nt.underlying.Send(packet, addr)
	}

	session := nt.getSession(addr)
	if session == nil {
		if err := nt.initiateHandshake(addr); err != nil {
			return err
		}
		return ErrNoiseHandshakePending
	}
	if !session.isComplete() {
		return ErrNoiseHandshakePending
	}

	encrypted, err := nt.encryptPacket(packet, session)
	if err != nil {
		return err
	}
	return nt.underlying.Send(encrypted, addr)
}

// RegisterHandler sets the handler invoked with decrypted packets.
func (nt *NoiseTransport) RegisterHandler(packetType PacketType, handler PacketHandler) {
	nt.handlersMu.Lock()
	nt.handlers[packetType] = handler
	nt.handlersMu.Unlock()
}

// LocalAddr returns the underlying transport's local address.
func (nt *NoiseTransport) LocalAddr() net.Addr {
	return nt.underlying.LocalAddr()
}

// Overhead reports the underlying framing plus the explicit nonce,
// cipher tag and inner packet type added to every encrypted datagram.
func (nt *NoiseTransport) Overhead() int {
	return nt.underlying.Overhead() + noiseNonceSize + noiseAuthTagSize + 1
}

// Close drops all sessions and closes the underlying transport.
func (nt *NoiseTransport) Close() error {
	nt.sessionsMu.Lock()
	nt.sessions = make(map[string]*noiseSession)
	nt.sessionsMu.Unlock()
	return nt.underlying.Close()
}

func (nt *NoiseTransport) getSession(addr net.Addr) *noiseSession {
	nt.sessionsMu.RLock()
	defer nt.sessionsMu.RUnlock()
	return nt.sessions[addr.String()]
}

// initiateHandshake sends the Noise-IK initiator message to a peer
// whose static key was registered via AddPeer.
func (nt *NoiseTransport) initiateHandshake(addr net.Addr) error {
	nt.peerKeysMu.RLock()
	peerKey, known := nt.peerKeys[addr.String()]
	nt.peerKeysMu.RUnlock()
	if !known {
		return ErrNoisePeerUnknown
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseCipherSuite,
		Pattern:       noise.HandshakeIK,
		Initiator:     true,
		StaticKeypair: nt.staticKey,
		PeerStatic:    peerKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create handshake: %w", err)
	}

	message, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return fmt.Errorf("failed to write handshake message: %w", err)
	}

	nt.sessionsMu.Lock()
	nt.sessions[addr.String()] = &noiseSession{
		handshake: hs,
		peerAddr:  addr,
		initiator: true,
	}
	nt.sessionsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "NoiseTransport.initiateHandshake",
		"peer":     addr.String(),
	}).Info("Noise handshake initiated")

	return nt.underlying.Send(&Packet{PacketType: PacketNoiseHandshake, Data: message}, addr)
}

// handleHandshakePacket advances the handshake for the peer, creating
// a responder session on first contact.
func (nt *NoiseTransport) handleHandshakePacket(packet *Packet, addr net.Addr) error {
	session := nt.getSession(addr)
	if session == nil {
		hs, err := noise.NewHandshakeState(noise.Config{
			CipherSuite:   noiseCipherSuite,
			Pattern:       noise.HandshakeIK,
			StaticKeypair: nt.staticKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create responder handshake: %w", err)
		}
		session = &noiseSession{handshake: hs, peerAddr: addr}
		nt.sessionsMu.Lock()
		nt.sessions[addr.String()] = session
		nt.sessionsMu.Unlock()
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.complete {
		return fmt.Errorf("handshake already complete for peer %s", addr)
	}

	if session.initiator {
		// IK message 2: responder's reply finishes the handshake.
		_, cs1, cs2, err := session.handshake.ReadMessage(nil, packet.Data)
		if err != nil {
			return fmt.Errorf("failed to read handshake response: %w", err)
		}
		session.send = cs1
		session.recv = cs2
		session.complete = true
	} else {
		// IK message 1: consume it and send the finishing reply.
		if _, _, _, err := session.handshake.ReadMessage(nil, packet.Data); err != nil {
			return fmt.Errorf("failed to read handshake message: %w", err)
		}
		response, cs1, cs2, err := session.handshake.WriteMessage(nil, nil)
		if err != nil {
			return fmt.Errorf("failed to write handshake response: %w", err)
		}
		session.send = cs2
		session.recv = cs1
		session.complete = true
		if err := nt.underlying.Send(&Packet{PacketType: PacketNoiseHandshake, Data: response}, addr); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NoiseTransport.handleHandshakePacket",
		"peer":      addr.String(),
		"initiator": session.initiator,
	}).Info("Noise handshake complete")
	return nil
}

// handleEncryptedPacket decrypts an incoming message and forwards the
// inner packet to the registered handler.
func (nt *NoiseTransport) handleEncryptedPacket(packet *Packet, addr net.Addr) error {
	session := nt.getSession(addr)
	if session == nil || !session.isComplete() {
		return ErrNoiseSessionNotFound
	}

	if len(packet.Data) < noiseNonceSize+1 {
		return errors.New("encrypted packet too short")
	}
	nonce := binary.BigEndian.Uint64(packet.Data[:noiseNonceSize])

	session.mu.Lock()
	session.recv.SetNonce(nonce)
	plaintext, err := session.recv.Decrypt(nil, nil, packet.Data[noiseNonceSize:])
	session.mu.Unlock()
	if err != nil {
		return fmt.Errorf("decryption failed: %w", err)
	}
	if len(plaintext) < 1 {
		return errors.New("decrypted packet too short")
	}

	inner := &Packet{
		PacketType: PacketType(plaintext[0]),
		Data:       plaintext[1:],
	}

	nt.handlersMu.RLock()
	handler, exists := nt.handlers[inner.PacketType]
	nt.handlersMu.RUnlock()
	if exists {
		return handler(inner, addr)
	}
	return nil
}

// encryptPacket serializes the inner packet and encrypts it with the
// session's send cipher, prepending the explicit nonce.
func (nt *NoiseTransport) encryptPacket(packet *Packet, session *noiseSession) (*Packet, error) {
	serialized, err := packet.Serialize()
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	nonce := session.sendNonce
	session.send.SetNonce(nonce)
	ciphertext, err := session.send.Encrypt(nil, nil, serialized)
	session.sendNonce++
	session.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}

	data := make([]byte, noiseNonceSize+len(ciphertext))
	binary.BigEndian.PutUint64(data[:noiseNonceSize], nonce)
	copy(data[noiseNonceSize:], ciphertext)

	return &Packet{PacketType: PacketNoiseMessage, Data: data}, nil
}

func (ns *noiseSession) isComplete() bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.complete
}
