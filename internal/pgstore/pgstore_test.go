package pgstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/flowpbx/sccpd/internal/sccp"
)

var _ sccp.MessageStore = (*Store)(nil)

// openTestStore connects to the database named by SCCPD_TEST_PG_DSN and skips
// the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SCCPD_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SCCPD_TEST_PG_DSN not set")
	}
	s, err := New(context.Background(), dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeviceMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const dev = "SEPTEST00000001"
	t.Cleanup(func() { s.DeleteDeviceMessage(ctx, dev) })

	if err := s.SetDeviceMessage(ctx, dev, "Gone fishing"); err != nil {
		t.Fatalf("SetDeviceMessage() error: %v", err)
	}
	if err := s.SetDeviceMessage(ctx, dev, "Back Monday"); err != nil {
		t.Fatalf("SetDeviceMessage() update error: %v", err)
	}
	msg, err := s.DeviceMessage(ctx, dev)
	if err != nil {
		t.Fatalf("DeviceMessage() error: %v", err)
	}
	if msg != "Back Monday" {
		t.Errorf("DeviceMessage() = %q, want %q", msg, "Back Monday")
	}

	if err := s.DeleteDeviceMessage(ctx, dev); err != nil {
		t.Fatalf("DeleteDeviceMessage() error: %v", err)
	}
	msg, err = s.DeviceMessage(ctx, dev)
	if err != nil {
		t.Fatalf("DeviceMessage() error: %v", err)
	}
	if msg != "" {
		t.Errorf("DeviceMessage() after delete = %q, want empty", msg)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}
