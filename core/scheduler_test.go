package core

import "testing"

func TestIntervalCadence(t *testing.T) {
	iv := NewInterval(100)
	var fired []uint32
	for now := uint32(0); now <= 350; now += 10 {
		if iv.Due(now) {
			fired = append(fired, now)
		}
	}
	want := []uint32{0, 100, 200, 300}
	if len(fired) != len(want) {
		t.Fatalf("Expected %v, got %v", want, fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, fired)
			break
		}
	}
}

func TestIntervalSkipsMissedPeriods(t *testing.T) {
	iv := NewInterval(100)
	iv.Due(0)
	if !iv.Due(550) {
		t.Fatal("Expected fire after a long gap")
	}
	if iv.Due(600) {
		t.Error("Missed periods must not be replayed")
	}
	if !iv.Due(650) {
		t.Error("Expected cadence to restart from the late fire")
	}

	iv.Reset()
	if !iv.Due(660) {
		t.Error("Reset should make the next check fire")
	}

	every := NewInterval(0)
	if !every.Due(1) || !every.Due(1) {
		t.Error("Period 0 fires on every check")
	}
}

func TestIntervalWrap(t *testing.T) {
	iv := NewInterval(100)
	start := uint32(0xFFFFFFC0)
	iv.Due(start)
	if iv.Due(start + 50) {
		t.Error("Fired early across the wrap")
	}
	if !iv.Due(start + 100) {
		t.Error("Did not fire across the wrap")
	}
}

func TestTimerListOrder(t *testing.T) {
	var l TimerList
	var order []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{WakeTime: wake, Handler: func(*Timer, uint32) uint8 {
			order = append(order, id)
			return SF_DONE
		}}
	}
	a, b, c := mk(1, 300), mk(2, 100), mk(3, 200)
	l.Schedule(a)
	l.Schedule(b)
	l.Schedule(c)

	l.Dispatch(150)
	if len(order) != 1 || order[0] != 2 {
		t.Fatalf("Expected only timer 2 at 150, got %v", order)
	}
	l.Cancel(a)
	l.Dispatch(1000)
	if len(order) != 2 || order[1] != 3 {
		t.Errorf("Expected timer 3 then nothing, got %v", order)
	}
	if l.Pending(a) {
		t.Error("Cancelled timer still pending")
	}
}

func TestTimerReschedule(t *testing.T) {
	var l TimerList
	count := 0
	tm := &Timer{WakeTime: 0}
	tm.Handler = func(t *Timer, now uint32) uint8 {
		count++
		if count == 3 {
			return SF_DONE
		}
		t.WakeTime += 10
		return SF_RESCHEDULE
	}
	l.Schedule(tm)
	for now := uint32(0); now <= 100; now += 10 {
		l.Dispatch(now)
	}
	if count != 3 || l.Pending(tm) {
		t.Errorf("Expected 3 runs then done, got %d pending=%v", count, l.Pending(tm))
	}
}

func TestAlarmToggles(t *testing.T) {
	var l TimerList
	gpio := newFakeGPIO()
	a := NewAlarm(gpio, 9, &l)
	a.Configure()

	a.Start(0)
	l.Dispatch(0)
	if !a.On() || !gpio.pins[9] {
		t.Fatal("Alarm should switch on immediately")
	}
	l.Dispatch(AlarmToggleMs)
	if a.On() {
		t.Error("Alarm should toggle off after one period")
	}
	for now := uint32(AlarmToggleMs); now <= AlarmDurationMs; now += 10 {
		l.Dispatch(now)
	}
	if a.Active() || gpio.pins[9] {
		t.Error("Alarm should end silent after its duration")
	}

	silent := NewAlarm(nil, 0, &l)
	silent.Start(0)
	l.Dispatch(0)
	silent.Stop()
}

func TestManualClock(t *testing.T) {
	c := &ManualClock{Now: 5}
	c.Advance(10)
	if c.Millis() != 15 {
		t.Errorf("Expected 15, got %d", c.Millis())
	}
	if !timeReached(0x00000005, 0xFFFFFFF0) || timeReached(0xFFFFFFF0, 0x00000005) {
		t.Error("timeReached is not wrap safe")
	}
}
