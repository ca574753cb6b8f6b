package modbushttp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSend(t *testing.T) {
	var gotBody []byte
	var gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, gotPass, _ = r.BasicAuth()
		json.NewEncoder(w).Encode(&SendResponse{ADUResponse: []byte{1, 2, 3}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.Password = "hunter2"
	resp, err := c.Send([]byte{9, 8})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff(resp, []byte{1, 2, 3}); diff != "" {
		t.Errorf("unexpected response: got(-)/want(+):\n%s", diff)
	}
	if diff := cmp.Diff(gotBody, []byte{9, 8}); diff != "" {
		t.Errorf("unexpected request: got(-)/want(+):\n%s", diff)
	}
	if gotPass != "hunter2" {
		t.Errorf("password %q, want %q", gotPass, "hunter2")
	}
}

func TestSendErrors(t *testing.T) {
	for _, test := range []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"remote error", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(&SendResponse{Error: "timeout"})
		}},
		{"bad status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "wrong password", http.StatusUnauthorized)
		}},
		{"bad body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	} {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(test.handler)
			defer srv.Close()
			if _, err := NewClient(srv.URL).Send([]byte{1}); err == nil {
				t.Error("Send succeeded, want error")
			}
		})
	}
}
