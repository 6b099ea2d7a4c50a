package scheduler

import (
	"time"

	"github.com/ztroop/zephyr/internal/schedule"
)

// detectSleepLocked classifies the gap since the previous tick. When the gap
// exceeds the sleep threshold, every enabled command whose due time fell
// inside the gap gets exactly one catch-up run, marked by setting its
// override to now. Multiple missed occurrences coalesce into that single
// run. Commands beyond the per-event cap skip the missed occurrence: their
// override is pushed to the first occurrence after the wake instead.
//
// Caller holds s.mu.
func (s *Service) detectSleepLocked(now time.Time) (slept bool, gap time.Duration, affected, capped int) {
	lastTick := s.st.LastTickAt
	if lastTick.IsZero() {
		return false, 0, 0, 0
	}
	gap = now.Sub(lastTick)
	if gap <= s.cfg.sleepThreshold() {
		return false, gap, 0, 0
	}

	for _, c := range s.commands {
		if !c.Enabled {
			continue
		}
		cs := s.st.Commands[c.Name]
		anchor := s.startedAt
		if anchor.After(lastTick) {
			// Started after the recorded tick: the gap predates this
			// process, evaluate never-run commands against its end.
			anchor = now
		}
		nd := schedule.NextDue(c.Schedule, cs.LastRunAt, c.Immediate, anchor)
		if !nd.After(lastTick) || !nd.Before(now) {
			continue
		}
		if affected < s.cfg.MaxCatchUpDispatches {
			cs.NextDueOverride = now
			affected++
		} else {
			// Beyond the cap: skip the missed occurrence entirely and pick
			// up again at the next one after the wake.
			cs.NextDueOverride = c.Schedule.NextAfter(now)
			capped++
		}
		s.st.Commands[c.Name] = cs
	}
	return true, gap, affected, capped
}
