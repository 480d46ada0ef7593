package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/io-pipeline/module-echo/pkg/config"
	"github.com/io-pipeline/module-echo/pkg/proto"
)

type fakeKV struct {
	mu    sync.Mutex
	sets  int
	key   string
	value []byte
	ttl   time.Duration
	fail  int
}

func (kv *fakeKV) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.sets++
	if kv.fail > 0 {
		kv.fail--
		return errors.New("registry unavailable")
	}
	kv.key = key
	kv.value = value.([]byte)
	kv.ttl = ttl
	return nil
}

type fakeRegistrar struct {
	md  *proto.RegistrationMetadata
	err error
}

func (r *fakeRegistrar) GetRegistration(ctx context.Context, req *proto.RegistrationRequest) (*proto.RegistrationMetadata, error) {
	return r.md, r.err
}

func testConfig() config.RegistryConfig {
	return config.RegistryConfig{
		Enabled:   true,
		KeyPrefix: "pipeline:modules",
		Interval:  30 * time.Second,
		TTL:       90 * time.Second,
	}
}

func TestAnnounceWritesRegistration(t *testing.T) {
	kv := &fakeKV{}
	reg := &fakeRegistrar{md: &proto.RegistrationMetadata{
		ModuleName:        "echo",
		Version:           "1.0.0",
		HealthCheckPassed: true,
	}}
	a := NewAnnouncer(kv, reg, testConfig(), "echo", nil)

	if err := a.Announce(context.Background()); err != nil {
		t.Fatalf("Announce returned error: %v", err)
	}
	if kv.key != "pipeline:modules:echo" {
		t.Errorf("key = %q, want pipeline:modules:echo", kv.key)
	}
	if kv.ttl != 90*time.Second {
		t.Errorf("ttl = %v, want 90s", kv.ttl)
	}

	var stored proto.RegistrationMetadata
	if err := json.Unmarshal(kv.value, &stored); err != nil {
		t.Fatalf("stored value is not valid JSON: %v", err)
	}
	if stored.ModuleName != "echo" || !stored.HealthCheckPassed {
		t.Errorf("stored registration = %+v", stored)
	}
}

func TestAnnounceRetriesTransientStoreFailure(t *testing.T) {
	kv := &fakeKV{fail: 2}
	reg := &fakeRegistrar{md: &proto.RegistrationMetadata{ModuleName: "echo"}}
	a := NewAnnouncer(kv, reg, testConfig(), "echo", nil)

	if err := a.Announce(context.Background()); err != nil {
		t.Fatalf("Announce returned error after retries: %v", err)
	}
	if kv.sets != 3 {
		t.Errorf("Set called %d times, want 3", kv.sets)
	}
}

func TestAnnounceReportsRegistrationError(t *testing.T) {
	kv := &fakeKV{}
	a := NewAnnouncer(kv, &fakeRegistrar{err: errors.New("probe blew up")}, testConfig(), "echo", nil)

	if err := a.Announce(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if kv.sets != 0 {
		t.Errorf("Set called %d times, want 0", kv.sets)
	}
}

func TestRunAnnouncesImmediatelyAndStopsOnCancel(t *testing.T) {
	kv := &fakeKV{}
	reg := &fakeRegistrar{md: &proto.RegistrationMetadata{ModuleName: "echo"}}
	cfg := testConfig()
	cfg.Interval = time.Hour
	a := NewAnnouncer(kv, reg, cfg, "echo", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		kv.mu.Lock()
		sets := kv.sets
		kv.mu.Unlock()
		if sets >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the initial announcement")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
