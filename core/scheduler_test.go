package core

import (
	"testing"
)

func TestTimerDispatchOrder(t *testing.T) {
	var fired []int

	t1 := &Timer{WakeTime: 300, Handler: func(*Timer) uint8 {
		fired = append(fired, 3)
		return SF_DONE
	}}
	t2 := &Timer{WakeTime: 100, Handler: func(*Timer) uint8 {
		fired = append(fired, 1)
		return SF_DONE
	}}
	t3 := &Timer{WakeTime: 200, Handler: func(*Timer) uint8 {
		fired = append(fired, 2)
		return SF_DONE
	}}

	ScheduleTimer(t1)
	ScheduleTimer(t2)
	ScheduleTimer(t3)

	TimerDispatch(300)

	if len(fired) != 3 || fired[0] != 1 || fired[1] != 2 || fired[2] != 3 {
		t.Errorf("Timers fired out of order: %v", fired)
	}
}

func TestTimerDispatchOnlyDue(t *testing.T) {
	var fired int

	early := &Timer{WakeTime: 50, Handler: func(*Timer) uint8 {
		fired++
		return SF_DONE
	}}
	late := &Timer{WakeTime: 500, Handler: func(*Timer) uint8 {
		fired++
		return SF_DONE
	}}

	ScheduleTimer(early)
	ScheduleTimer(late)

	TimerDispatch(100)
	if fired != 1 {
		t.Errorf("Expected 1 timer fired at t=100, got %d", fired)
	}

	TimerDispatch(500)
	if fired != 2 {
		t.Errorf("Expected 2 timers fired at t=500, got %d", fired)
	}
}

func TestTimerReschedule(t *testing.T) {
	var count int

	timer := &Timer{WakeTime: 10}
	timer.Handler = func(tm *Timer) uint8 {
		count++
		if count < 3 {
			tm.WakeTime += 10
			return SF_RESCHEDULE
		}
		return SF_DONE
	}

	ScheduleTimer(timer)
	TimerDispatch(100)

	if count != 3 {
		t.Errorf("Expected 3 firings, got %d", count)
	}
}

func TestUnscheduleTimer(t *testing.T) {
	var fired bool

	timer := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 {
		fired = true
		return SF_DONE
	}}

	ScheduleTimer(timer)
	UnscheduleTimer(timer)
	TimerDispatch(100)

	if fired {
		t.Error("Unscheduled timer fired")
	}
}

func TestTimerHandlerMaySchedule(t *testing.T) {
	var secondFired bool

	second := &Timer{WakeTime: 20, Handler: func(*Timer) uint8 {
		secondFired = true
		return SF_DONE
	}}
	first := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 {
		ScheduleTimer(second)
		return SF_DONE
	}}

	ScheduleTimer(first)
	TimerDispatch(100)

	if !secondFired {
		t.Error("Timer scheduled from a handler did not fire in the same dispatch")
	}
}
