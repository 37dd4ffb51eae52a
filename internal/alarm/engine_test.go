package alarm

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mine-monitor/internal/models"
	"mine-monitor/pkg/config"
)

const t0 = 1_700_000_000.0

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	rules, err := RulesFromThresholds(config.DefaultThresholds())
	require.NoError(t, err)

	e, err := NewEngine(rules, cfg)
	require.NoError(t, err)

	return e
}

// safe returns a reading where every parameter is normal
func safe(ts float64) models.Reading {
	return models.Reading{Pressure: 20, Temperature: 25, Vibration: 5, Timestamp: ts}
}

func pressureDanger(ts float64) models.Reading {
	r := safe(ts)
	r.Pressure = 90

	return r
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	rules, err := RulesFromThresholds(config.DefaultThresholds())
	require.NoError(t, err)

	_, err = NewEngine(rules, Config{MinInterval: 0, MaxCountPerHour: 10})
	assert.ErrorIs(t, err, ErrInvalidSuppress)

	_, err = NewEngine(rules[:2], DefaultConfig())
	assert.ErrorIs(t, err, ErrMissingRule)

	_, err = NewEngine(append(rules, rules[0]), DefaultConfig())
	assert.ErrorIs(t, err, ErrDuplicateRule)

	bad := append([]Rule(nil), rules...)
	bad[1].Danger.Low = 40
	_, err = NewEngine(bad, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = NewEngine(append(rules, Rule{Parameter: "humidity"}), DefaultConfig())
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestCheckReadingMinInterval(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	fired := e.CheckReading(pressureDanger(t0))
	require.Len(t, fired, 1)
	assert.Equal(t, models.LevelDanger, fired[0].Level)
	assert.Equal(t, models.AlarmThreshold, fired[0].Type)
	assert.Equal(t, models.ParameterPressure, fired[0].Parameter)
	assert.InDelta(t, 80.0, fired[0].Threshold, 1e-9)
	assert.InDelta(t, 90.0, fired[0].Value, 1e-9)

	assert.Empty(t, e.CheckReading(pressureDanger(t0+30)))

	fired = e.CheckReading(pressureDanger(t0 + 61))
	require.Len(t, fired, 1)
	assert.Equal(t, uint64(2), fired[0].Seq)

	stats := e.Stats()
	assert.Equal(t, uint64(2), stats.TotalAlarms)
	assert.Equal(t, uint64(1), stats.Suppressed)
	assert.Equal(t, 1, stats.ActiveCount)
}

func TestCheckReadingHourlyCap(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	count := 0
	for ts := t0; ts < t0+3600; ts += 60 {
		count += len(e.CheckReading(pressureDanger(ts)))
	}

	assert.Equal(t, 10, count)

	// the first fire at t0 leaves the trailing hour
	assert.Len(t, e.CheckReading(pressureDanger(t0+3600.5)), 1)
}

func TestCheckReadingSurvivesClockStepBack(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	require.Len(t, e.CheckReading(pressureDanger(t0)), 1)

	// device reset: timestamps restart a day earlier
	back := t0 - 86400
	require.Len(t, e.CheckReading(pressureDanger(back)), 1)
	assert.Empty(t, e.CheckReading(pressureDanger(back+30)))
	assert.Len(t, e.CheckReading(pressureDanger(back+61)), 1)
}

func TestCheckReadingOutOfOrderStaysSuppressed(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	fired := 0
	for i := 0; i < 30; i++ {
		fired += len(e.CheckReading(pressureDanger(t0 - float64(i)*0.5)))
	}

	assert.Equal(t, 1, fired, "readings stepping back 0.5s each are not a clock reset")

	// a step back just inside the window is still suppressed
	assert.Empty(t, e.CheckReading(pressureDanger(t0-3500)))
}

func TestCheckReadingNeverExceedsCapInAnyWindow(t *testing.T) {
	e := newTestEngine(t, Config{MinInterval: 5 * time.Second, MaxCountPerHour: 4})

	var fires []float64
	for ts := t0; ts < t0+4*3600; ts += 7 {
		for _, ev := range e.CheckReading(pressureDanger(ts)) {
			fires = append(fires, ev.Timestamp)
		}
	}

	require.NotEmpty(t, fires)

	for i := range fires {
		if i > 0 {
			assert.GreaterOrEqual(t, fires[i]-fires[i-1], 5.0)
		}

		inWindow := 0
		for _, f := range fires {
			if f > fires[i]-3600 && f <= fires[i] {
				inWindow++
			}
		}

		assert.LessOrEqual(t, inWindow, 4)
	}
}

func TestCheckReadingResolution(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	var resolved []models.AlarmEvent
	e.AddResolveCallback(func(ev models.AlarmEvent) { resolved = append(resolved, ev) })

	require.Len(t, e.CheckReading(pressureDanger(t0)), 1)
	require.Len(t, e.ActiveAlarms(), 1)

	assert.Empty(t, e.CheckReading(safe(t0+1)))
	assert.Empty(t, e.ActiveAlarms())
	require.Len(t, resolved, 1)
	assert.Equal(t, models.LevelNormal, resolved[0].Level)
	assert.Equal(t, models.ParameterPressure, resolved[0].Parameter)

	// resolution does not reset suppression
	assert.Empty(t, e.CheckReading(pressureDanger(t0+30)))
	assert.Equal(t, uint64(1), e.Stats().Resolved)
}

func TestSuppressedLevelChangeKeepsActiveEntry(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	require.Len(t, e.CheckReading(pressureDanger(t0)), 1)

	warn := safe(t0 + 10)
	warn.Pressure = 60
	assert.Empty(t, e.CheckReading(warn))

	active := e.ActiveAlarms()
	require.Len(t, active, 1)
	assert.Equal(t, models.LevelDanger, active[0].Level)

	warn.Timestamp = t0 + 70
	require.Len(t, e.CheckReading(warn), 1)

	active = e.ActiveAlarms()
	require.Len(t, active, 1)
	assert.Equal(t, models.LevelWarning, active[0].Level)
}

func TestCheckReadingMultipleParameters(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	r := models.Reading{Pressure: 85, Temperature: 40, Vibration: 45, Timestamp: t0}
	fired := e.CheckReading(r)
	require.Len(t, fired, 3)

	assert.Equal(t, models.ParameterPressure, fired[0].Parameter)
	assert.Equal(t, models.ParameterTemperature, fired[1].Parameter)
	assert.Equal(t, models.LevelWarning, fired[1].Level)
	assert.Equal(t, models.ParameterVibration, fired[2].Parameter)

	active := e.ActiveAlarms()
	require.Len(t, active, 3)
	assert.Equal(t, models.ParameterPressure, active[0].Parameter)
	assert.Equal(t, models.ParameterTemperature, active[1].Parameter)
}

func TestCheckReadingSkipsNonFinite(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	r := safe(t0)
	r.Vibration = math.Inf(1)

	assert.Empty(t, e.CheckReading(r))
	assert.Equal(t, uint64(0), e.Stats().TotalAlarms)
}

func TestCallbackPanicIsIsolated(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	var after int
	e.AddCallback(func(models.AlarmEvent) { panic("observer blew up") })
	e.AddCallback(func(models.AlarmEvent) { after++ })

	var fired []models.AlarmEvent
	require.NotPanics(t, func() { fired = e.CheckReading(pressureDanger(t0)) })

	assert.Len(t, fired, 1)
	assert.Equal(t, 1, after)
}

func TestTriggerSystemAlarm(t *testing.T) {
	now := time.Unix(int64(t0), 0)
	cfg := DefaultConfig()
	cfg.Clock = func() time.Time { return now }

	e := newTestEngine(t, cfg)

	var seen []models.AlarmEvent
	e.AddCallback(func(ev models.AlarmEvent) { seen = append(seen, ev) })

	_, ok := e.TriggerSystemAlarm("all good", models.LevelNormal)
	assert.False(t, ok)

	ev, ok := e.TriggerSystemAlarm("AI detected risk: roof strain", models.LevelDanger)
	require.True(t, ok)
	assert.Equal(t, models.AlarmSystem, ev.Type)
	assert.Equal(t, models.ParameterSystem, ev.Parameter)
	assert.InDelta(t, t0, ev.Timestamp, 1e-6)
	assert.Len(t, seen, 1)
	assert.Empty(t, e.ActiveAlarms())

	// same key, inside min interval
	now = now.Add(30 * time.Second)
	_, ok = e.TriggerSystemAlarm("again", models.LevelWarning)
	assert.False(t, ok)

	// sensor alarms keep their own suppression key
	assert.Len(t, e.CheckReading(pressureDanger(t0+30)), 1)

	now = now.Add(31 * time.Second)
	_, ok = e.TriggerSystemAlarm("again", models.LevelWarning)
	assert.True(t, ok)
}

func TestHistoryAndAcknowledge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	cfg.MinInterval = time.Second

	e := newTestEngine(t, cfg)

	for i := 0; i < 5; i++ {
		e.CheckReading(pressureDanger(t0 + float64(i)*2))
	}

	hist := e.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, uint64(5), hist[0].Seq)
	assert.Equal(t, uint64(3), hist[2].Seq)

	assert.Len(t, e.History(2), 2)

	acked, ok := e.Acknowledge(5)
	require.True(t, ok)
	assert.True(t, acked.Acknowledged)
	assert.InDelta(t, t0+8, acked.Timestamp, 1e-9)
	assert.True(t, e.History(1)[0].Acknowledged)
	assert.True(t, e.ActiveAlarms()[0].Acknowledged)

	_, ok = e.Acknowledge(99)
	assert.False(t, ok)

	last, ok := e.LastFire(models.ParameterPressure)
	require.True(t, ok)
	assert.InDelta(t, t0+8, last, 1e-9)
}

func TestSelfTestPassesForDefaults(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	assert.Empty(t, e.SelfTest())
	assert.Equal(t, uint64(0), e.Stats().TotalAlarms)
}

func TestConcurrentCheckReadingHonorsSuppression(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	var fired atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				fired.Add(int64(len(e.CheckReading(pressureDanger(t0 + float64(j))))))
			}
		}()
	}

	wg.Wait()

	// every reading sits within one minute of the first
	assert.Equal(t, int64(1), fired.Load())
}
