package schedule

import "time"

// NextDue computes when a command may next run.
//
// Rules:
//   - no prior run + immediate: due at the anchor (first evaluation)
//   - no prior run, not immediate: the schedule must elapse naturally from
//     the anchor, which callers fix at daemon start so the result is stable
//     across evaluations
//   - prior run: purely additive from the last *started* run; a long previous
//     execution delays but never skips the next one
func NextDue(s Schedule, lastRun time.Time, immediate bool, anchor time.Time) time.Time {
	if lastRun.IsZero() {
		if immediate {
			return anchor
		}
		return s.NextAfter(anchor)
	}
	return s.NextAfter(lastRun)
}

// Due reports whether a command is due at now. Beyond NextDue it enforces the
// minimum re-trigger interval against the last started run.
func Due(s Schedule, lastRun time.Time, immediate bool, anchor, now time.Time, tick time.Duration) bool {
	if NextDue(s, lastRun, immediate, anchor).After(now) {
		return false
	}
	if !lastRun.IsZero() && now.Sub(lastRun) < s.MinInterval(tick) {
		return false
	}
	return true
}
