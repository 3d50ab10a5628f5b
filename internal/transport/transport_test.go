package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost", "localhost:30002"},
		{"stats.local:4000", "stats.local:4000"},
		{"127.0.0.1", "127.0.0.1:30002"},
		{"127.0.0.1:30003", "127.0.0.1:30003"},
		{"::1", "[::1]:30002"},
		{"[::1]", "[::1]:30002"},
		{"[2001:db8::1]:9000", "[2001:db8::1]:9000"},
		{"  padded  ", "padded:30002"},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.in)
		if err != nil {
			t.Errorf("ParseTarget(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTarget(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTargetErrors(t *testing.T) {
	for _, in := range []string{"", ":30002", "host:0", "host:http", "host:70000", "[nothost]"} {
		if _, err := ParseTarget(in); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("ParseTarget(%q): expected ErrInvalidTarget, got %v", in, err)
		}
	}
}

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUDPSenderDeliversDatagram(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDP(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}

	payload := []byte{0x0a, 0x02, 'h', 'i'}
	if err := sender.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf[:n], payload) {
		t.Fatalf("received % x, want % x", buf[:n], payload)
	}

	stats := sender.Stats().Snapshot()
	if stats.PacketsSent != 1 || stats.BytesSent != int64(len(payload)) || stats.Errors != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.LastSend.IsZero() {
		t.Error("expected last send time")
	}
}

func TestUDPSenderCanceledContext(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDP(conn.LocalAddr().String(), WithRate(1))
	if err != nil {
		t.Fatalf("NewUDP: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sender.Send(ctx, []byte{1}); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
	if got := sender.Stats().Snapshot().Errors; got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	ok := &Recorder{}
	m := Multi{
		SenderFunc(func(context.Context, []byte) error { return errA }),
		ok,
		&Recorder{Err: errB},
	}

	err := m.Send(context.Background(), []byte("x"))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if !strings.Contains(err.Error(), "a down") {
		t.Errorf("unexpected message %q", err)
	}
	if len(ok.Payloads()) != 1 {
		t.Errorf("healthy sender should still receive the packet")
	}
}

func TestRecorderCopiesPayload(t *testing.T) {
	r := &Recorder{}
	payload := []byte{1, 2, 3}
	r.Send(context.Background(), payload)
	payload[0] = 9

	got := r.Payloads()
	if len(got) != 1 || got[0][0] != 1 {
		t.Fatalf("recorder should keep its own copy, got %v", got)
	}
}
