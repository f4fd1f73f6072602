package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ghostchat/pkg/config"
	"ghostchat/pkg/models"
	"ghostchat/pkg/store"
)

func openTestStore(t *testing.T) *store.Pebble {
	t.Helper()
	p, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func seed(t *testing.T, p *store.Pebble, room string, mutate func(id string)) string {
	t.Helper()
	id, err := p.Create(&models.Message{Room: room, Author: "s1", Kind: models.KindText, Ciphertext: "ct"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mutate != nil {
		mutate(id)
	}
	return id
}

func sweepConfig() config.SweeperConfig {
	return config.SweeperConfig{
		Enabled:   true,
		Grace:     config.Duration(time.Hour),
		BatchSize: 500,
	}
}

func TestSweep_Suite(t *testing.T) {
	t.Run("PurgesExpiredRecords", func(t *testing.T) {
		p := openTestStore(t)
		kept := seed(t, p, "room_sweep_1", nil)
		doomed, err := p.Create(&models.Message{
			Room: "room_sweep_1", Author: "s1", Kind: models.KindText,
			Ciphertext: "ct", DisappearAt: time.Now().Add(-time.Minute).UnixNano(),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := RunOnce(context.Background(), sweepConfig(), p); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if _, err := p.Get(doomed); err != store.ErrNotFound {
			t.Fatalf("expired record survived the sweep: %v", err)
		}
		if _, err := p.Get(kept); err != nil {
			t.Fatalf("live record was swept: %v", err)
		}
	})

	t.Run("TombstoneRespectsGrace", func(t *testing.T) {
		p := openTestStore(t)
		tr := true
		fresh := seed(t, p, "room_sweep_2", func(id string) {
			if err := p.Apply(id, store.Update{DeletedForEveryone: &tr}); err != nil {
				t.Fatalf("apply: %v", err)
			}
		})
		if err := RunOnce(context.Background(), sweepConfig(), p); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		// Tombstone is younger than the grace period, so the record stays.
		if _, err := p.Get(fresh); err != nil {
			t.Fatalf("fresh tombstone was reclaimed early: %v", err)
		}
		cfg := sweepConfig()
		cfg.Grace = config.Duration(time.Nanosecond)
		time.Sleep(5 * time.Millisecond)
		if err := RunOnce(context.Background(), cfg, p); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if _, err := p.Get(fresh); err != store.ErrNotFound {
			t.Fatalf("aged tombstone survived: %v", err)
		}
	})

	t.Run("DryRunDeletesNothing", func(t *testing.T) {
		p := openTestStore(t)
		doomed, err := p.Create(&models.Message{
			Room: "room_sweep_3", Author: "s1", Kind: models.KindText,
			Ciphertext: "ct", DisappearAt: time.Now().Add(-time.Minute).UnixNano(),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		cfg := sweepConfig()
		cfg.DryRun = true
		if err := RunOnce(context.Background(), cfg, p); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if _, err := p.Get(doomed); err != nil {
			t.Fatalf("dry run deleted a record: %v", err)
		}
	})

	t.Run("ChunksLargeSweeps", func(t *testing.T) {
		p := openTestStore(t)
		past := time.Now().Add(-time.Minute).UnixNano()
		for i := 0; i < 12; i++ {
			if _, err := p.Create(&models.Message{
				Room: "room_sweep_4", Author: "s1", Kind: models.KindText,
				Ciphertext: "ct", DisappearAt: past,
			}); err != nil {
				t.Fatalf("create %d: %v", i, err)
			}
		}
		cfg := sweepConfig()
		cfg.BatchSize = 5
		if err := RunOnce(context.Background(), cfg, p); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		recs, err := p.Snapshot("room_sweep_4", 0)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if len(recs) != 0 {
			t.Fatalf("%d records survived a chunked sweep", len(recs))
		}
	})

	t.Run("DisabledStartIsNoop", func(t *testing.T) {
		p := openTestStore(t)
		cancel, err := Start(context.Background(), config.SweeperConfig{Enabled: false}, p)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		cancel()
	})

	t.Run("InvalidCronRejected", func(t *testing.T) {
		p := openTestStore(t)
		cfg := sweepConfig()
		cfg.Cron = "not a cron"
		if _, err := Start(context.Background(), cfg, p); err == nil {
			t.Fatal("invalid cron accepted")
		}
	})
}
