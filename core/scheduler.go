package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(t *Timer, now uint32) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// TimerList is a wake-time ordered list of one-shot or self-rescheduling
// timers, dispatched from the control loop
type TimerList struct {
	head *Timer
}

// Schedule adds a timer. A timer already in the list is moved.
func (l *TimerList) Schedule(t *Timer) {
	l.Cancel(t)
	l.insert(t)
}

// insert inserts a timer in sorted order by WakeTime
func (l *TimerList) insert(t *Timer) {
	if l.head == nil || int32(t.WakeTime-l.head.WakeTime) < 0 {
		t.Next = l.head
		l.head = t
		return
	}

	current := l.head
	for current.Next != nil && int32(current.Next.WakeTime-t.WakeTime) < 0 {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Cancel removes a timer if it is scheduled
func (l *TimerList) Cancel(t *Timer) {
	if l.head == t {
		l.head = t.Next
		t.Next = nil
		return
	}
	for current := l.head; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// Pending reports whether t is scheduled
func (l *TimerList) Pending(t *Timer) bool {
	for current := l.head; current != nil; current = current.Next {
		if current == t {
			return true
		}
	}
	return false
}

// Dispatch runs every timer due at now
func (l *TimerList) Dispatch(now uint32) {
	for l.head != nil && timeReached(now, l.head.WakeTime) {
		timer := l.head
		l.head = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references

		// Handlers set WakeTime before asking to be rescheduled
		if timer.Handler(timer, now) == SF_RESCHEDULE {
			l.insert(timer)
		}
	}
}
