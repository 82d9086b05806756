package refunds

import "time"

// SetClock replaces the service clock.
func SetClock(svc Service, now func() time.Time) {
	svc.(*service).now = now
}
