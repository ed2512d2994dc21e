package client

import (
	"testing"
	"time"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		raw        string
		host       string
		app        string
		streamName string
		tcURL      string
		wantErr    bool
	}{
		{raw: "rtmp://localhost/live/cam1", host: "localhost:1935", app: "live", streamName: "cam1", tcURL: "rtmp://localhost:1935/live"},
		{raw: "rtmp://media.example.com:1936/app/nested/key", host: "media.example.com:1936", app: "app", streamName: "nested/key", tcURL: "rtmp://media.example.com:1936/app"},
		{raw: "rtmps://secure.example.com/live/cam1", host: "secure.example.com:1935", app: "live", streamName: "cam1", tcURL: "rtmps://secure.example.com:1935/live"},
		{raw: "rtmp://localhost/live", host: "localhost:1935", app: "live", streamName: ""},
		{raw: "http://localhost/live/cam1", wantErr: true},
		{raw: "rtmp://localhost/", wantErr: true},
	}
	for _, c := range cases {
		t.Run(c.raw, func(t *testing.T) {
			target, err := ParseURL(c.raw)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if target.Host != c.host || target.App != c.app || target.StreamName != c.streamName {
				t.Fatalf("parsed wrong: %+v", target)
			}
			if c.tcURL != "" && target.TcURL != c.tcURL {
				t.Fatalf("tcUrl: got %s want %s", target.TcURL, c.tcURL)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.ConnectTimeout.Std() != 10*time.Second || cfg.ChunkSize != 4096 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 64
	if err := cfg.Validate(); err == nil {
		t.Fatalf("chunk_size below 128 must fail")
	}
	cfg = DefaultConfig()
	cfg.ChunkSize = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("chunk_size above 65536 must fail")
	}
	cfg = DefaultConfig()
	cfg.MaxReconnectAttempts = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("negative reconnect attempts must fail")
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("ftp://host/app/stream"); err == nil {
		t.Fatalf("bad scheme must fail")
	}
}

func TestTransactionIDsMonotonic(t *testing.T) {
	c, err := New("rtmp://localhost/live/cam1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if a, b := c.nextTrx(), c.nextTrx(); a != 1 || b != 2 {
		t.Fatalf("transaction ids must increment from 1: %v %v", a, b)
	}
}
