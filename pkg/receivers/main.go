package receivers

import (
	payo "github.com/payoapp/payo/pkg"
	"github.com/payoapp/payo/pkg/conductor"
)

// Sets up standard receivers.
func SetUpReceivers(cond *conductor.Conductor, bus payo.MessageBus, conf payo.Config) {
	// Set up configured loggers
	SetupLoggers(cond, bus, conf)

	// Set up configured Callbacks
	SetupCallbacks(cond, bus, conf)
}
