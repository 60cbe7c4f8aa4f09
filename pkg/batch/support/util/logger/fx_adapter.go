package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes uber-fx lifecycle events into a Logger.
type FxLoggerAdapter struct {
	log *Logger
}

// NewFxLoggerAdapter creates an fxevent.Logger writing through the default Logger.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{log: Default().With("fx")}
}

// LogEvent logs events from Fx. Wiring noise goes to DEBUG, failures to ERROR.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			a.log.Errorf("OnStart hook failed: %s, error: %v", shortFunctionName(e.FunctionName), e.Err)
		} else {
			a.log.Debugf("OnStart hook executed: %s (%s)", shortFunctionName(e.FunctionName), e.Runtime)
		}
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			a.log.Errorf("OnStop hook failed: %s, error: %v", shortFunctionName(e.FunctionName), e.Err)
		} else {
			a.log.Debugf("OnStop hook executed: %s", shortFunctionName(e.FunctionName))
		}
	case *fxevent.Supplied:
		if e.Err != nil {
			a.log.Errorf("Supplied failed: %v", e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			a.log.Errorf("Provide error: %v", e.Err)
			return
		}
		for _, rtype := range e.OutputTypeNames {
			a.log.Debugf("Provided: %s", rtype)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			a.log.Errorf("Invoke failed: %s, error: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Stopping:
		a.log.Infof("Stopping signal received: %s", e.Signal)
	case *fxevent.RollingBack:
		a.log.Errorf("Start failed, rolling back, error: %v", e.StartErr)
	case *fxevent.Started:
		if e.Err != nil {
			a.log.Errorf("Start failed, error: %v", e.Err)
		} else {
			a.log.Debugf("Application started.")
		}
	}
}

// shortFunctionName strips anonymous function suffixes such as ".func1" from Fx function names.
func shortFunctionName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
