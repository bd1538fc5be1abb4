package answerer

import (
	"testing"
)

func TestSilencePayloadFrameSize(t *testing.T) {
	// One 20ms PCMU frame at 8kHz is 160 bytes.
	if len(silencePayload) != samplesPerFrame {
		t.Errorf("silence payload = %d bytes, want %d", len(silencePayload), samplesPerFrame)
	}
}

func TestNewServerDefaultsAdvertiseAddr(t *testing.T) {
	s, err := NewServer(Config{BindAddr: "127.0.0.1", Port: 5080})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	defer s.Close()

	if s.cfg.AdvertiseAddr != "127.0.0.1" {
		t.Errorf("AdvertiseAddr = %q, want bind address fallback", s.cfg.AdvertiseAddr)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d on fresh server, want 0", s.Count())
	}
}

func TestRemoveUnknownCallIsNoop(t *testing.T) {
	s, err := NewServer(Config{BindAddr: "127.0.0.1", Port: 5081})
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	defer s.Close()

	s.remove("no-such-call")
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}
