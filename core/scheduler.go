package core

import "sync"

// Timer represents a scheduled event.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

// Handler results.
const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerMu   sync.Mutex
	timerList *Timer
)

// ScheduleTimer adds a timer to the schedule.
func ScheduleTimer(t *Timer) {
	timerMu.Lock()
	defer timerMu.Unlock()
	insertTimer(t)
}

// insertTimer inserts a timer in sorted order by WakeTime. Caller holds
// timerMu.
func insertTimer(t *Timer) {
	if timerList == nil || t.WakeTime < timerList.WakeTime {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && current.Next.WakeTime < t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// UnscheduleTimer removes a timer from the schedule if present.
func UnscheduleTimer(t *Timer) {
	timerMu.Lock()
	defer timerMu.Unlock()

	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return
	}
	for current := timerList; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// TimerDispatch processes all timers due at the given time. Handlers run
// outside the schedule lock, so they may schedule other timers; a handler
// reschedules itself by setting WakeTime and returning SF_RESCHEDULE.
func TimerDispatch(now uint32) {
	for {
		timerMu.Lock()
		if timerList == nil || timerList.WakeTime > now {
			timerMu.Unlock()
			return
		}
		timer := timerList
		timerList = timer.Next
		timer.Next = nil
		timerMu.Unlock()

		if timer.Handler == nil {
			continue
		}
		if timer.Handler(timer) == SF_RESCHEDULE {
			ScheduleTimer(timer)
		}
	}
}
