// Package modbushttp tunnels Modbus RTU frames through an HTTP bridge
// (see cmd/modbus_server).
package modbushttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goburrow/modbus"
)

type SendResponse struct {
	ADUResponse []byte
	Error       string
}

type Client struct {
	*modbus.RTUClientHandler

	// Password is sent as basic auth when set
	Password string

	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	handler := modbus.NewRTUClientHandler("/dev/null")
	handler.SlaveId = 1
	return &Client{
		RTUClientHandler: handler,
		baseURL:          baseURL,
		http:             &http.Client{Timeout: 2 * time.Second},
	}
}

func (c *Client) Send(aduRequest []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(aduRequest))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.Password != "" {
		req.SetBasicAuth("modbus", c.Password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %s\n%s", resp.Status, string(body))
	}
	var sendResponse SendResponse
	if err := json.Unmarshal(body, &sendResponse); err != nil {
		return nil, err
	}
	if sendResponse.Error != "" {
		err = errors.New(sendResponse.Error)
	}
	return sendResponse.ADUResponse, err
}

func (c *Client) Connect() error {
	return nil
}

func (c *Client) Close() error {
	return nil
}
