package obs

import "go.uber.org/zap"

// NewLogger returns a zap logger. Debug uses the development config
// (console, debug level); otherwise the production JSON config.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
