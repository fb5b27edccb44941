package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"
)

// ExitFunc is swapped out in tests.
var ExitFunc = os.Exit

// Step is one named teardown action.
type Step struct {
	Name string
	Fn   func() error
}

// Run executes steps in order, logging failures without stopping, and reports whether
// every step succeeded.
func Run(steps ...Step) bool {
	ok := true
	for _, s := range steps {
		if err := s.Fn(); err != nil {
			log.Error().Err(err).Str("step", s.Name).Msg("Shutdown step failed")
			ok = false
			continue
		}
		log.Debug().Str("step", s.Name).Msg("Shutdown step complete")
	}
	return ok
}

func Shutdown(steps ...Step) {
	code := 0
	if !Run(steps...) {
		code = 1
	}
	log.Info().Msg("Bridge shut down")
	ExitFunc(code)
}

func ShutdownWithError(err error, msg string, steps ...Step) {
	log.Error().Err(err).Msg(msg)
	Run(steps...)
	ExitFunc(1)
}
