package sweeper

import (
	"context"
	"fmt"
	"time"

	"ghostchat/pkg/config"
	"ghostchat/pkg/logger"
	"ghostchat/pkg/models"
	"ghostchat/pkg/stats"
	"ghostchat/pkg/store"
	"ghostchat/pkg/utils"
)

// RunOnce executes a single sweep: scan every room, collect eligible ids,
// delete them in batch-sized chunks with a sleep between chunks to keep the
// store responsive. Exported so an admin trigger can run a sweep on demand.
func RunOnce(ctx context.Context, cfg config.SweeperConfig, st store.Store) error {
	runID := utils.GenMessageID()
	start := time.Now()
	logger.Info("sweep_start", "run_id", runID, "dry_run", cfg.DryRun)

	rooms, err := st.Rooms()
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	grace := cfg.Grace.Duration()
	now := time.Now()
	var scanned, eligible int
	var doomed []string
	for _, room := range rooms {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		recs, err := st.Snapshot(room, 0)
		if err != nil {
			logger.Error("sweep_room_scan_failed", "run_id", runID, "room", room, "error", err)
			continue
		}
		for i := range recs {
			scanned++
			if sweepEligible(&recs[i], now, grace) {
				eligible++
				doomed = append(doomed, recs[i].ID)
			}
		}
	}

	if cfg.DryRun {
		logger.Info("sweep_done", "run_id", runID, "scanned", scanned,
			"eligible", eligible, "purged", 0, "dry_run", true,
			"elapsed", time.Since(start).String())
		return nil
	}

	chunk := cfg.BatchSize
	if chunk <= 0 || chunk > st.MaxBatch() {
		chunk = st.MaxBatch()
	}
	var purged int
	for from := 0; from < len(doomed); from += chunk {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		to := from + chunk
		if to > len(doomed) {
			to = len(doomed)
		}
		if err := st.DeleteBatch(doomed[from:to]); err != nil {
			logger.Error("sweep_chunk_failed", "run_id", runID, "size", to-from, "error", err)
			continue
		}
		purged += to - from
		stats.SweptMessages.Add(float64(to - from))
		if sleep := cfg.BatchSleep.Duration(); sleep > 0 && to < len(doomed) {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	logger.Info("sweep_done", "run_id", runID, "scanned", scanned,
		"eligible", eligible, "purged", purged,
		"elapsed", time.Since(start).String())
	return nil
}

// sweepEligible reports whether a record may be reclaimed: either its
// disappear deadline passed, or it is deleted-for-everyone and the tombstone
// outlived the grace period. The grace lets every client observe the
// tombstone before the record vanishes.
func sweepEligible(m *models.Message, now time.Time, grace time.Duration) bool {
	if models.IsExpired(m, now) {
		return true
	}
	if m.DeletedForEveryone {
		at := m.DeletedAt
		if at == 0 {
			at = m.SentAt
		}
		return time.Unix(0, at).Add(grace).Before(now)
	}
	return false
}
