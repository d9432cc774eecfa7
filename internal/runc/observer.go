package runc

import "time"

// Observer is told about every completed runc command.
// err is nil on success.
type Observer interface {
	ObserveCommand(verb string, d time.Duration, err error)
}

// Observers fans one observation out to several observers.
type Observers []Observer

// ObserveCommand implements Observer.
func (o Observers) ObserveCommand(verb string, d time.Duration, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveCommand(verb, d, err)
		}
	}
}
