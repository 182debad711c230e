package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"groundctl/board"
)

const udpReadBufferSize = 4096

// UDPManager exchanges JSON datagrams with a board's firmware over a UDP
// socket connected to a fixed remote address.
type UDPManager struct {
	boardName string
	board     *board.Board
	remote    string

	corr *correlator

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDP dials remoteAddr (host:port) for b. Connecting a UDP socket just
// fixes the peer address for Write/Read; it performs no handshake.
func NewUDP(b *board.Board, remoteAddr string) (*UDPManager, error) {
	addr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving UDP address %q for board %q: %w", remoteAddr, b.Name, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dialing UDP %q for board %q: %w", remoteAddr, b.Name, err)
	}
	log.Info().Str("board", b.Name).Str("remote", remoteAddr).Msg("UDP socket opened")
	return &UDPManager{
		boardName: b.Name,
		board:     b,
		remote:    remoteAddr,
		corr:      newCorrelator(),
		conn:      conn,
	}, nil
}

// Run starts the read loop and the pending-response sweep, blocking until
// ctx is cancelled.
func (m *UDPManager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.readLoop(gctx)
		return nil
	})
	g.Go(func() error {
		m.corr.sweep(gctx)
		return nil
	})
	return g.Wait()
}

func (m *UDPManager) readLoop(ctx context.Context) {
	buf := make([]byte, udpReadBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		m.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := m.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("board", m.boardName).Msg("UDP read error")
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		sendID, ok := decodeInbound(frame)
		if !ok {
			continue
		}
		m.corr.deliver(sendID, frame)
	}
}

// SendReceive reserves a send_id, writes frame as a single datagram, and
// waits up to the response timeout for the matching reply, applying it to
// the board's actual state on arrival.
func (m *UDPManager) SendReceive(ctx context.Context, frame any) error {
	id, ch := m.corr.reserve()
	data, err := injectSendID(frame, id)
	if err != nil {
		m.corr.abandon(id)
		return err
	}

	m.mu.Lock()
	_, writeErr := m.conn.Write(data)
	m.mu.Unlock()
	if writeErr != nil {
		m.corr.abandon(id)
		log.Error().Err(writeErr).Str("board", m.boardName).Msg("UDP write error")
		return writeErr
	}

	timer := time.NewTimer(responseTimeout)
	defer timer.Stop()
	select {
	case raw := <-ch:
		rs, err := decodeRawState(raw)
		if err != nil {
			log.Error().Err(err).Str("board", m.boardName).Msg("UDP: malformed response frame")
			return err
		}
		return m.board.UpdateState(rs)
	case <-timer.C:
		m.corr.abandon(id)
		log.Warn().Str("board", m.boardName).Int64("send_id", id).Msg("timeout waiting for UDP response")
		return nil
	case <-ctx.Done():
		m.corr.abandon(id)
		return ctx.Err()
	}
}

// Close closes the underlying UDP socket.
func (m *UDPManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.conn.Close()
	log.Info().Str("board", m.boardName).Str("remote", m.remote).Msg("UDP socket closed")
	return err
}
