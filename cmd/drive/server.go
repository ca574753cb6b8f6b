package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/scan_drive/control"
	"github.com/w1xm/scan_drive/drive"
	"github.com/w1xm/scan_drive/easycomm"
	"github.com/w1xm/scan_drive/panel"
	"github.com/w1xm/scan_drive/telemetry"
)

// Status is pushed to web remotes after every scan.
type Status struct {
	Deployment string           `json:"deployment"`
	Cycle      telemetry.Sample `json:"cycle"`
	// Remote is what the web remotes are holding down
	Remote      []string         `json:"remote"`
	RemoteLight drive.Color      `json:"remote_light"`
	Panel       *panel.Status    `json:"panel,omitempty"`
	Actuator    *easycomm.Status `json:"actuator,omitempty"`
}

// Server is the web remote: it accepts button presses over websockets
// and publishes the drive status.
type Server struct {
	deployment string

	mu      sync.Mutex
	pressed map[string]drive.Events

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status
}

func NewServer(deployment string) *Server {
	s := &Server{
		deployment: deployment,
		pressed:    make(map[string]drive.Events),
	}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	s.status = Status{Deployment: deployment, Remote: []string{}, RemoteLight: drive.RemoteColor}
	return s
}

func (s *Server) Router(staticDir string) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/status", http.HandlerFunc(s.StatusHandler))
	r.Handle("/api/ws", http.HandlerFunc(s.StatusSocketHandler))
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return r
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// Command is sent by a web remote whenever its buttons change.
type Command struct {
	Pressed []string `json:"pressed"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()
	id := uuid.NewString()
	log.Printf("remote %s connected from %v", id, r.RemoteAddr)

	// Read and process incoming messages
	go func() {
		defer cancel()
		// Momentary buttons: a vanished remote must not keep driving.
		defer s.release(id)
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				log.Printf("remote %s: %v", id, err)
				return
			}
			events, err := parsePressed(msg.Pressed)
			if err != nil {
				log.Printf("remote %s: %v", id, err)
				continue
			}
			s.press(id, events)
		}
	}()
	go func() {
		// Wake the writer so it notices the connection is gone.
		<-ctx.Done()
		s.statusMu.Lock()
		s.statusCond.Broadcast()
		s.statusMu.Unlock()
	}()

	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	for {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(status); err != nil {
			log.Printf("remote %s: %v", id, err)
			return
		}
		s.statusMu.RLock()
		s.statusCond.Wait()
		status = s.status
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
	}
}

func parsePressed(names []string) (drive.Events, error) {
	var events drive.Events
	for _, name := range names {
		e, err := drive.ParseEvent(name)
		if err != nil {
			return 0, err
		}
		events |= drive.Of(e)
	}
	return events, nil
}

func (s *Server) press(id string, events drive.Events) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed[id] = events
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pressed, id)
}

// Pressed implements control.Inputs.
func (s *Server) Pressed() (drive.Events, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all drive.Events
	for _, events := range s.pressed {
		all |= events
	}
	return all, nil
}

// Observe implements control.Observer.
func (s *Server) Observe(c control.Cycle) {
	remote, _ := s.Pressed()
	names := []string{}
	for _, e := range remote.List() {
		names = append(names, e.String())
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Cycle = telemetry.NewSample(c, time.Now())
	s.status.Remote = names
	s.statusCond.Broadcast()
}

func (s *Server) panelCallback(status panel.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Panel = &status
}

func (s *Server) actuatorCallback(status easycomm.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Actuator = &status
}
