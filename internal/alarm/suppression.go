package alarm

import "time"

const suppressionWindow = float64(time.Hour / time.Second)

// suppressionLog is a sliding log of fire timestamps (epoch seconds) for one parameter.
// Guarded by the engine mutex.
type suppressionLog struct {
	fires []float64
}

func (s *suppressionLog) prune(now float64) {
	cutoff := now - suppressionWindow

	i := 0
	for i < len(s.fires) && s.fires[i] <= cutoff {
		i++
	}

	if i > 0 {
		s.fires = append(s.fires[:0], s.fires[i:]...)
	}
}

// admit records a firing at ts when both the minimum interval and the
// hourly count allow it. A timestamp more than a full window before the last
// fire means the source clock was reset, so the log restarts from ts. Smaller
// backward steps are out-of-order delivery and stay suppressed.
func (s *suppressionLog) admit(ts float64, minInterval float64, maxPerHour int) bool {
	if n := len(s.fires); n > 0 && ts < s.fires[n-1]-suppressionWindow {
		s.fires = s.fires[:0]
	}

	s.prune(ts)

	if n := len(s.fires); n > 0 && ts-s.fires[n-1] < minInterval {
		return false
	}

	if len(s.fires) >= maxPerHour {
		return false
	}

	s.fires = append(s.fires, ts)

	return true
}

func (s *suppressionLog) lastFire() (float64, bool) {
	if len(s.fires) == 0 {
		return 0, false
	}

	return s.fires[len(s.fires)-1], true
}
