package p2p

import (
	"recipe-swap/internal/telemetry"
	"recipe-swap/internal/uiutil"
)

func nodeLogger(base telemetry.Logger, self string) telemetry.Logger {
	if base == nil {
		base = telemetry.NewNopLogger()
	}
	return base.With("module", "p2p", "self", uiutil.ShortID(self))
}
