package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.ListenAddr != ":5050" || c.Store.Backend != StorePostgres {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Store.Attempts != 5 || c.Store.RetryDelay != time.Second {
		t.Fatalf("retry defaults: %d %v", c.Store.Attempts, c.Store.RetryDelay)
	}
	if c.Timeouts.LoginRead != 120*time.Second || c.Timeouts.SessionRead != 60*time.Second {
		t.Fatalf("read timeouts: %+v", c.Timeouts)
	}
	if c.Blacklist.AuthBan != time.Minute || c.Blacklist.IllegalBan != 5*time.Minute || c.Blacklist.LoginAttempts != 3 {
		t.Fatalf("blacklist defaults: %+v", c.Blacklist)
	}
	if c.Workers.PollInterval != 50*time.Millisecond || c.Workers.WatchInterval != 500*time.Millisecond {
		t.Fatalf("worker defaults: %+v", c.Workers)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chitchat.yaml")
	yaml := `
server:
  listen_addr: "127.0.0.1:7000"
store:
  backend: memory
workers:
  count: 2
timeouts:
  await: 3s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHITCHAT_WORKERS_COUNT", "4")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.ListenAddr != "127.0.0.1:7000" || c.Store.Backend != StoreMemory {
		t.Fatalf("file values ignored: %+v", c)
	}
	if c.Timeouts.Await != 3*time.Second {
		t.Fatalf("await=%v", c.Timeouts.Await)
	}
	if c.Workers.Count != 4 {
		t.Fatalf("env must override file: count=%d", c.Workers.Count)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CHITCHAT_STORE_BACKEND", "sqlite")
	if _, err := Load(""); err == nil {
		t.Fatal("want error on unknown backend")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("want error on missing file")
	}
}
