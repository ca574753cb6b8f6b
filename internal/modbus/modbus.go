package modbus

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/w1xm/scan_drive/internal/modbus/modbushttp"
)

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

type Client struct {
	// Port and BaudRate create a local serial connection
	Port string
	// BaudRate defaults to 19200
	BaudRate int
	SlaveId  byte
	// Address creates a Modbus TCP connection
	Address string
	// URL creates a remote connection through a modbus_server bridge
	URL      string
	Password string

	// Poll function to be called in a loop while the connection is active
	Poll func() error
	// PollInterval is the pause between calls to Poll
	PollInterval time.Duration
	// OnDisconnect is called when a connection is lost
	OnDisconnect func()

	handler modbusHandler
	modbus.Client

	mu        sync.Mutex
	connected bool
}

var ErrNotConnected = errors.New("modbus: not connected")

func (c *Client) name() string {
	switch {
	case c.URL != "":
		return c.URL
	case c.Address != "":
		return c.Address
	}
	return c.Port
}

func (c *Client) Connect(ctx context.Context) error {
	switch {
	case c.URL != "":
		handler := modbushttp.NewClient(c.URL)
		handler.Password = c.Password
		c.handler = handler
	case c.Address != "":
		handler := modbus.NewTCPClientHandler(c.Address)
		handler.Timeout = 1 * time.Second
		handler.SlaveId = c.SlaveId
		c.handler = handler
	default:
		if c.Port == "" {
			return errors.New("modbus: no port, address or URL configured")
		}
		handler := modbus.NewRTUClientHandler(c.Port)
		handler.BaudRate = c.BaudRate
		if handler.BaudRate == 0 {
			handler.BaudRate = 19200
		}
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.Timeout = 1 * time.Second
		handler.SlaveId = c.SlaveId
		c.handler = handler
	}
	c.Client = modbus.NewClient(c.handler)
	go c.reconnectLoop(ctx)
	return nil
}

// Connected reports whether the last poll succeeded.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	was := c.connected
	c.connected = v
	c.mu.Unlock()
	if was && !v && c.OnDisconnect != nil {
		c.OnDisconnect()
	}
}

func (c *Client) reconnectLoop(ctx context.Context) {
	port := c.name()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}

		err := c.handler.Connect()
		if err != nil {
			log.Printf("opening %q: %v", port, err)
			continue
		}
		if err := c.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("watching %q: %v", port, err)
		}
	}
}

func (c *Client) watch(ctx context.Context) error {
	defer c.handler.Close()
	defer c.setConnected(false)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.Poll(); err != nil {
			return err
		}
		c.setConnected(true)
		if c.PollInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.PollInterval):
			}
		}
	}
}

func (c *Client) WriteCoil(coil int, value bool) error {
	var v uint16
	if value {
		v = 0xFF00
	}
	_, err := c.WriteSingleCoil(uint16(coil), v)
	return err
}

// WriteRegisters writes consecutive holding registers starting at addr.
func (c *Client) WriteRegisters(addr int, values ...uint16) error {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		data[2*i] = byte(v >> 8)
		data[2*i+1] = byte(v)
	}
	_, err := c.WriteMultipleRegisters(uint16(addr), uint16(len(values)), data)
	return err
}

func BytesToBits(bs []byte) []bool {
	var out []bool
	for _, b := range bs {
		for i := 0; i < 8; i++ {
			out = append(out, (b>>uint(i)&1) == 1)
		}
	}
	return out
}
