package main

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/scan_drive/internal/modbus/modbushttp"
)

type fakeRTU struct {
	requests [][]byte
	response []byte
	err      error
}

func (f *fakeRTU) Send(aduRequest []byte) ([]byte, error) {
	f.requests = append(f.requests, aduRequest)
	return f.response, f.err
}

func TestBridge(t *testing.T) {
	rtu := &fakeRTU{response: []byte{1, 2, 1, 5, 0, 0}}
	ts := httptest.NewServer(NewServer(rtu, "hunter2").Router())
	defer ts.Close()

	c := modbushttp.NewClient(ts.URL + "/api/send")
	c.Password = "hunter2"
	resp, err := c.Send([]byte{1, 2, 0, 0, 0, 4})
	require.NoError(t, err)
	assert.Equal(t, rtu.response, resp)
	assert.Equal(t, [][]byte{{1, 2, 0, 0, 0, 4}}, rtu.requests)

	rtu.err = errors.New("serial: timeout")
	_, err = c.Send([]byte{1, 2, 0, 0, 0, 4})
	assert.EqualError(t, err, "serial: timeout")
}

func TestBridgeRequiresPassword(t *testing.T) {
	rtu := &fakeRTU{}
	ts := httptest.NewServer(NewServer(rtu, "hunter2").Router())
	defer ts.Close()

	c := modbushttp.NewClient(ts.URL + "/api/send")
	c.Password = "wrong"
	_, err := c.Send([]byte{1, 2, 0, 0, 0, 4})
	assert.Error(t, err)
	assert.Empty(t, rtu.requests)
}
