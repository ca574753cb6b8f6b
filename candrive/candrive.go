// Package candrive sends speed commands to a motor controller over SocketCAN.
//
// Command frame layout (little endian, 4 bytes):
//
//	bit  0      enable
//	bits 8-23   speed, signed, 0.1 deg/s per bit
//	bits 24-27  rolling counter
package candrive

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

const (
	frameLength   = 4
	speedFactor   = 0.1
	counterModulo = 16
	// DefaultID is the frame ID motor controllers listen on by default.
	DefaultID uint32 = 0x210

	sendTimeout = 50 * time.Millisecond
)

type FrameTransmitter interface {
	TransmitFrame(ctx context.Context, frame can.Frame) error
}

type Writer struct {
	conn net.Conn
	tx   FrameTransmitter
	id   uint32

	mu      sync.Mutex
	counter uint8
}

func Dial(ctx context.Context, iface string, id uint32) (*Writer, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &Writer{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
		id:   id,
	}, nil
}

// NewWriter sends frames through tx, which is not closed by Close.
func NewWriter(tx FrameTransmitter, id uint32) *Writer {
	return &Writer{tx: tx, id: id}
}

func (w *Writer) SetVelocity(degPerSec float64) error {
	return w.transmit(degPerSec, true)
}

func (w *Writer) Stop() error {
	return w.transmit(0, false)
}

func (w *Writer) transmit(degPerSec float64, enable bool) error {
	w.mu.Lock()
	counter := w.counter
	w.counter = (w.counter + 1) % counterModulo
	w.mu.Unlock()

	frame, err := EncodeCommand(w.id, degPerSec, enable, counter)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := w.tx.TransmitFrame(ctx, frame); err != nil {
		return fmt.Errorf("transmit 0x%X: %w", w.id, err)
	}
	return nil
}

func (w *Writer) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// EncodeCommand builds a command frame. Speeds beyond the signal range
// are clamped.
func EncodeCommand(id uint32, degPerSec float64, enable bool, counter uint8) (can.Frame, error) {
	if math.IsNaN(degPerSec) {
		return can.Frame{}, fmt.Errorf("invalid speed %v", degPerSec)
	}
	raw := math.Round(degPerSec / speedFactor)
	raw = math.Max(math.MinInt16, math.Min(math.MaxInt16, raw))

	f := can.Frame{ID: id, Length: frameLength}
	f.Data.SetBit(0, enable)
	f.Data.SetSignedBitsLittleEndian(8, 16, int64(raw))
	f.Data.SetUnsignedBitsLittleEndian(24, 4, uint64(counter%counterModulo))
	if err := f.Validate(); err != nil {
		return can.Frame{}, err
	}
	return f, nil
}

func DecodeCommand(f can.Frame) (degPerSec float64, enable bool, counter uint8) {
	enable = f.Data.Bit(0)
	degPerSec = float64(f.Data.SignedBitsLittleEndian(8, 16)) * speedFactor
	counter = uint8(f.Data.UnsignedBitsLittleEndian(24, 4))
	return degPerSec, enable, counter
}
