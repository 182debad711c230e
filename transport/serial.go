package transport

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"groundctl/board"
)

// SerialManager exchanges newline-delimited JSON frames with a board over
// a serial port.
type SerialManager struct {
	boardName string
	board     *board.Board
	portName  string
	baudRate  int

	corr *correlator

	mu   sync.Mutex
	port serial.Port
}

// NewSerial opens portName at baudRate for b. The connection is established
// eagerly, matching the original's "surfaced at initialization" failure
// model.
func NewSerial(b *board.Board, portName string, baudRate int) (*SerialManager, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %q at %d baud for board %q: %w", portName, baudRate, b.Name, err)
	}
	log.Info().Str("board", b.Name).Str("port", portName).Int("baud", baudRate).Msg("serial port opened")
	return &SerialManager{
		boardName: b.Name,
		board:     b,
		portName:  portName,
		baudRate:  baudRate,
		corr:      newCorrelator(),
		port:      port,
	}, nil
}

// Run starts the read loop and the pending-response sweep, blocking until
// ctx is cancelled.
func (m *SerialManager) Run(ctx context.Context) error {
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

func (m *SerialManager) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(m.port)
	lines := make(chan []byte)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if len(line) == 0 {
				continue
			}
			sendID, ok := decodeInbound(line)
			if !ok {
				continue
			}
			m.corr.deliver(sendID, line)
		}
	}
}

// SendReceive reserves a send_id, writes frame as a newline-terminated
// JSON line, and waits up to the response timeout for the matching reply,
// applying it to the board's actual state on arrival.
func (m *SerialManager) SendReceive(ctx context.Context, frame any) error {
	id, ch := m.corr.reserve()
	data, err := injectSendID(frame, id)
	if err != nil {
		m.corr.abandon(id)
		return err
	}
	data = append(data, '\n')

	m.mu.Lock()
	_, writeErr := m.port.Write(data)
	m.mu.Unlock()
	if writeErr != nil {
		m.corr.abandon(id)
		log.Error().Err(writeErr).Str("board", m.boardName).Msg("serial write error")
		return writeErr
	}

	timer := time.NewTimer(responseTimeout)
	defer timer.Stop()
	select {
	case raw := <-ch:
		rs, err := decodeRawState(raw)
		if err != nil {
			log.Error().Err(err).Str("board", m.boardName).Msg("serial: malformed response frame")
			return err
		}
		return m.board.UpdateState(rs)
	case <-timer.C:
		m.corr.abandon(id)
		log.Warn().Str("board", m.boardName).Int64("send_id", id).Msg("timeout waiting for serial response")
		return nil
	case <-ctx.Done():
		m.corr.abandon(id)
		return ctx.Err()
	}
}

// Close closes the underlying serial port.
func (m *SerialManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.port.Close()
	log.Info().Str("board", m.boardName).Str("port", m.portName).Msg("serial port closed")
	return err
}
