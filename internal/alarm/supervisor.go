package alarm

import "time"

// session is one armed period of the alarm, supervised by its own goroutine.
// It is spawned by Arm and runs until disarmed (or until an actuator fault
// forces it out). Its timing marks are local variables: they exist only for
// the lifetime of the session and are never shared.
type session struct {
	c *Controller

	// stop is closed by Disarm to signal the session out.
	stop chan struct{}
	// done is closed by the session when it has fully exited.
	done chan struct{}
}

// run executes the armed lifecycle: grace period, then the violation loop.
// On exit, whatever the reason, the alarm outputs are deactivated, the
// ignore set reverts to its default, and the armed flag clears. This is the
// only path back to the disarmed state.
func (s *session) run() {
	c := s.c

	defer func() {
		c.armed.Store(false)
		close(s.done)
	}()

	c.log.Debug("Alarm session starting...")

	if c.armedOutput != nil {
		if err := c.port.WriteOutput(*c.armedOutput, true); err != nil {
			c.fail(err)
			return
		}
	}

	if s.gracePeriod() {
		s.violationLoop()
	}

	if err := c.setAlarmOutputs(false); err != nil {
		c.fail(err)
	}
	c.tracker.ResetIgnored()

	if c.armedOutput != nil {
		if err := c.port.WriteOutput(*c.armedOutput, false); err != nil {
			c.fail(err)
		}
	}

	c.log.Info("Alarm is DISARMED.")
}

// gracePeriod waits out the arming delay, beeping once per second, and
// returns false if the session was disarmed before it expired. In that case
// the session never became truly armed and monitoring is skipped entirely.
func (s *session) gracePeriod() bool {
	c := s.c

	now := c.now()
	deadline := now.Add(c.armDelay)
	var lastBeep time.Time

	c.log.Infof("Waiting %s before arming...", c.armDelay)

	for now.Before(deadline) {
		select {
		case <-s.stop:
			return false
		case <-time.After(c.tick):
		}

		if now.Sub(lastBeep) >= time.Second {
			c.beep(SeqTimer, false)
			lastBeep = now
		}

		now = c.now()
	}

	c.beep(SeqArmed, false)
	c.log.Info("Alarm is ARMED.")
	return true
}

// violationLoop reacts to input violations each tick, activating and
// deactivating the alarm outputs as the deadlines come due.
//
// The trigger deadline is a commitment window: once set it is honored even
// if every input reseals before it elapses. The alarm duration is likewise
// fixed; resealing mid-alarm does not shorten it.
func (s *session) violationLoop() {
	c := s.c

	// Zero time.Time means "unset" for all three marks.
	var triggerAt, resetAt, lastBeep time.Time

	for {
		select {
		case <-s.stop:
			return
		case <-time.After(c.tick):
		}

		now := c.now()

		switch {
		case triggerAt.IsZero() && c.tracker.HasViolation():
			// A non-ignored input is unsealed: start the disarm grace period.
			triggerAt = now.Add(c.alarmDelay)
			c.log.Infof("Alarm will trigger in %s...", c.alarmDelay)

		case !triggerAt.IsZero() && now.Before(triggerAt):
			// Beep while waiting for a possible disarm.
			if now.Sub(lastBeep) >= time.Second {
				c.beep(SeqTimer, false)
				lastBeep = now
				c.log.Debug("Waiting for possible disarm...")
			}

		case !triggerAt.IsZero() && resetAt.IsZero():
			// Trigger deadline reached: sound the alarm.
			resetAt = triggerAt.Add(c.alarmDuration)
			if err := c.setAlarmOutputs(true); err != nil {
				c.fail(err)
				return
			}
			c.log.Warnf("Disarm grace period expired. Alarm ACTIVE for %s.", c.alarmDuration)

		case !resetAt.IsZero() && !now.Before(resetAt):
			// Alarm duration expired: deactivate and rearm automatically.
			if err := c.setAlarmOutputs(false); err != nil {
				c.fail(err)
				return
			}
			triggerAt, resetAt, lastBeep = time.Time{}, time.Time{}, time.Time{}
			c.beep(SeqArmed, false)
			c.log.Info("Alarm duration expired. Alarm inactive and REARMED.")

		case !resetAt.IsZero():
			// Alarm sounding.
			if now.Sub(lastBeep) >= time.Second {
				c.beep(SeqAlarm, false)
				lastBeep = now
			}
		}
	}
}
