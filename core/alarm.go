package core

// Alarm timing
const (
	AlarmToggleMs   = 200
	AlarmDurationMs = 5000
)

// Alarm is the audible alert: a buzzer pin toggled on a timer for a fixed
// time after the latch is raised
type Alarm struct {
	gpio GPIODriver
	pin  GPIOPin

	timers  *TimerList
	timer   Timer
	started uint32
	on      bool
}

// NewAlarm creates an alarm on pin. A nil driver gives a silent alarm.
func NewAlarm(gpio GPIODriver, pin GPIOPin, timers *TimerList) *Alarm {
	a := &Alarm{gpio: gpio, pin: pin, timers: timers}
	a.timer.Handler = a.toggle
	return a
}

// Configure prepares the buzzer pin
func (a *Alarm) Configure() error {
	if a.gpio == nil {
		return nil
	}
	if err := a.gpio.ConfigureOutput(a.pin); err != nil {
		return err
	}
	return a.gpio.SetPin(a.pin, false)
}

// Start begins (or restarts) the alarm pattern
func (a *Alarm) Start(now uint32) {
	a.started = now
	a.timer.WakeTime = now
	a.timers.Schedule(&a.timer)
}

// Stop silences the alarm
func (a *Alarm) Stop() {
	a.timers.Cancel(&a.timer)
	a.set(false)
}

// Active reports whether the alarm pattern is running
func (a *Alarm) Active() bool {
	return a.timers.Pending(&a.timer)
}

// On reports the current buzzer level
func (a *Alarm) On() bool {
	return a.on
}

func (a *Alarm) toggle(t *Timer, now uint32) uint8 {
	if now-a.started >= AlarmDurationMs {
		a.set(false)
		return SF_DONE
	}
	a.set(!a.on)
	t.WakeTime += AlarmToggleMs
	if timeReached(now, t.WakeTime) {
		t.WakeTime = now + AlarmToggleMs
	}
	return SF_RESCHEDULE
}

func (a *Alarm) set(on bool) {
	a.on = on
	if a.gpio != nil {
		a.gpio.SetPin(a.pin, on)
	}
}
