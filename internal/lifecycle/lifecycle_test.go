package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewCoordinatorWithClient(client, Config{HeartbeatInterval: time.Second}, nil)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestPhaseDefaultsToNotStarted(t *testing.T) {
	c, _ := newTestCoordinator(t)

	phase, err := c.Phase(context.Background(), 9161)
	if err != nil {
		t.Fatalf("Phase: %v", err)
	}
	if phase != PhaseNotStarted {
		t.Errorf("phase = %q, want %q", phase, PhaseNotStarted)
	}
}

func TestPhaseRoundTrip(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	for _, phase := range []Phase{PhaseActive, PhaseCompleted} {
		if err := c.SetPhase(ctx, 9161, phase); err != nil {
			t.Fatalf("SetPhase(%q): %v", phase, err)
		}
		got, err := c.Phase(ctx, 9161)
		if err != nil {
			t.Fatalf("Phase: %v", err)
		}
		if got != phase {
			t.Errorf("phase = %q, want %q", got, phase)
		}
	}
}

func TestHeartbeatRegistersInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := Config{HeartbeatInterval: time.Second}

	a := NewCoordinatorWithClient(client, cfg, nil)
	b := NewCoordinatorWithClient(client, cfg, nil)
	ctx := context.Background()

	if err := a.Heartbeat(ctx, 9161); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := b.Heartbeat(ctx, 9161); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	// A heartbeat on another session must not leak into this one.
	if err := b.Heartbeat(ctx, 9472); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	ids, err := a.Instances(ctx, 9161)
	if err != nil {
		t.Fatalf("Instances: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d instances, want 2: %v", len(ids), ids)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[a.InstanceID()] || !seen[b.InstanceID()] {
		t.Errorf("instance IDs missing: got %v, want %s and %s", ids, a.InstanceID(), b.InstanceID())
	}
}

func TestHeartbeatExpires(t *testing.T) {
	c, mr := newTestCoordinator(t)
	ctx := context.Background()

	if err := c.Heartbeat(ctx, 9161); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// A crashed instance stops renewing and ages out after three intervals.
	mr.FastForward(4 * time.Second)

	ids, err := c.Instances(ctx, 9161)
	if err != nil {
		t.Fatalf("Instances: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("got %d instances after TTL, want 0", len(ids))
	}
}
