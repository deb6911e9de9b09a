package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time.Now so the scheduler and detector can be driven
// by a fake clock in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func NewSystemClock() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
