// Command modbus_server exposes the button panel's RTU link over HTTP so
// that drive can run on a machine without the serial port.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/gorilla/mux"
	"github.com/w1xm/scan_drive/internal/modbus/modbushttp"
)

var (
	addr        = flag.String("addr", "127.0.0.1:8503", "address to listen on")
	password    = flag.String("password", "", "password to require on remote connections")
	panelSerial = flag.String("panel_serial", "", "button panel serial port name")
	panelBaud   = flag.Int("panel_baud", 19200, "button panel baud rate")
)

type sender interface {
	Send(aduRequest []byte) (aduResponse []byte, err error)
}

type Server struct {
	// RTU transactions must not interleave on the wire.
	mu       sync.Mutex
	handler  sender
	password string
}

func newRTUHandler(port string, baud int) *modbus.RTUClientHandler {
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = 1 * time.Second
	handler.SlaveId = 1
	return handler
}

func NewServer(handler sender, password string) *Server {
	return &Server{
		handler:  handler,
		password: password,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/send", http.HandlerFunc(s.SendHandler)).Methods(http.MethodPost)
	r.PathPrefix("/debug").Handler(http.DefaultServeMux)
	return r
}

func (s *Server) SendHandler(w http.ResponseWriter, r *http.Request) {
	_, pass, ok := r.BasicAuth()
	if !ok || pass != s.password {
		http.Error(w, "wrong password", http.StatusUnauthorized)
		return
	}
	err := func() error {
		aduRequest, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		s.mu.Lock()
		aduResponse, err := s.handler.Send(aduRequest)
		s.mu.Unlock()
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&modbushttp.SendResponse{
			ADUResponse: aduResponse,
			Error:       errString,
		})
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		log.Printf("SendHandler: %v", err)
		http.Error(w, err.Error(), 500)
		return
	}
}

func main() {
	flag.Parse()
	handler := newRTUHandler(*panelSerial, *panelBaud)
	if err := handler.Connect(); err != nil {
		log.Fatalf("opening %q: %v", *panelSerial, err)
	}
	defer handler.Close()
	server := NewServer(handler, *password)
	srv := &http.Server{
		Handler:      server.Router(),
		Addr:         *addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.Printf("Listening on %v", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
