package usercode

import "time"

// timer is a re-armable timer owned by the manager loop. C is nil while
// disarmed, so a select on it blocks.
type timer struct {
	t     *time.Timer
	armed bool
}

func (t *timer) arm(d time.Duration) {
	t.disarm()
	if t.t == nil {
		t.t = time.NewTimer(d)
	} else {
		t.t.Reset(d)
	}
	t.armed = true
}

func (t *timer) disarm() {
	if !t.armed {
		return
	}
	if !t.t.Stop() {
		select {
		case <-t.t.C:
		default:
		}
	}
	t.armed = false
}

// fired marks the timer as consumed after its channel was received from
func (t *timer) fired() {
	t.armed = false
}

func (t *timer) C() <-chan time.Time {
	if !t.armed {
		return nil
	}
	return t.t.C
}
