package logging

import (
	"github.com/sirupsen/logrus"
)

// RunWrapper wraps a mode entry point with start/complete logging and
// collected run data. The wrapped function reports its exit code; errors
// are logged here so mode implementations only classify them.
func RunWrapper(
	loggingName string,
	log *logrus.Logger,
	run func(*LogData) (int, error),
) int {
	logData := NewLogData(log)

	log.Infof("Mode.%v.Start", loggingName)

	endTimer := logData.AddTiming("duration")
	code, err := run(logData)
	endTimer()
	if err != nil {
		logData.Log().WithError(err).Errorf("Mode.%v.Error", loggingName)
		return code
	}

	logData.Log().Infof("Mode.%v.Complete", loggingName)
	return code
}
