package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"fdc/internal/config"
	"fdc/internal/logging"
)

func TestOpenLocalWorkspace(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	logFile := filepath.Join(ws, "fdc.log")
	cfg := "service:\n  id: bty\nlog:\n  level: debug\n  file: " + logFile + "\n"
	if err := os.WriteFile(config.Path(ws), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	b, err := Open(ctx, Options{Workspace: ws, Console: io.Discard})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if b.Remote != nil {
		t.Fatalf("expected local backend")
	}
	if _, err := b.RequireRepo(); err != nil {
		t.Fatalf("require repo: %v", err)
	}
	if b.Config.Service.ID != "bty" {
		t.Fatalf("config not loaded: %+v", b.Config.Service)
	}
	p, err := b.Engine.Refresh(ctx)
	if err != nil || len(p.Missions) != 0 {
		t.Fatalf("refresh: %v %+v", err, p)
	}
	b.Logger.Info("opened", "workspace", ws)
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := logging.Tail(logFile, 10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) == 0 || entries[len(entries)-1].Message != "opened" {
		t.Fatalf("expected logged entry, got %+v", entries)
	}
}

func TestOpenRemoteSkipsLocalStore(t *testing.T) {
	ws := t.TempDir()
	b, err := Open(context.Background(), Options{
		Workspace: ws,
		RemoteURL: "http://fdc.example:8080",
		ActorID:   "op-a",
		Console:   io.Discard,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if b.Remote == nil || b.Remote.ActorID != "op-a" || b.Remote.BasePath != "/v0" {
		t.Fatalf("unexpected remote client %+v", b.Remote)
	}
	if _, err := b.RequireRepo(); !errors.Is(err, ErrLocalOnly) {
		t.Fatalf("expected ErrLocalOnly, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, ".fdc", "fdc.db")); !os.IsNotExist(err) {
		t.Fatalf("remote backend must not create a local store: %v", err)
	}
}

func TestJWTSecretFromConfiguredVariable(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecretEnv = "FDC_TEST_SECRET"
	t.Setenv("FDC_TEST_SECRET", "s3cret")
	if got := JWTSecret(cfg); got != "s3cret" {
		t.Fatalf("expected secret from env, got %q", got)
	}
}
