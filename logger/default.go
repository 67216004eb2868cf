package logger

// defLogger is what engines, ports and workers log through when no
// WithLogger option is given.
var defLogger = NewSlog(InfoLevel)

// GetLogger returns the package default logger.
func GetLogger() Logger {
	return defLogger
}
