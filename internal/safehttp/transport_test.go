package safehttp

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDenied(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.1.2.3", true},
		{"192.168.0.10", true},
		{"172.16.5.4", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := Denied(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("Denied(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestClientRejectsLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(2 * time.Second).Get(srv.URL)
	if err == nil {
		t.Fatal("expected loopback request to be denied")
	}
	if !errors.Is(err, ErrDenied) {
		t.Errorf("error = %v, want ErrDenied", err)
	}

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("plain client error = %v", err)
	}
	resp.Body.Close()
}
