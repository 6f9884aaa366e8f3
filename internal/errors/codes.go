package errors

const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidTier     ErrorCode = "invalid_tier"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Transport errors
	ErrTransportUnavailable ErrorCode = "transport_unavailable"
	ErrMalformedResponse    ErrorCode = "malformed_response"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrTimeout        ErrorCode = "operation_timeout"
	ErrServe          ErrorCode = "serve_failed"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:             "Internal error occurred",
	ErrInvalidArgument:      "Invalid argument provided",
	ErrAlreadyRunning:       "Another instance is already running",
	ErrInvalidConfig:        "Invalid configuration",
	ErrReadConfig:           "Failed to read config file",
	ErrBindFlags:            "Failed to bind flags",
	ErrInvalidInterval:      "Invalid interval value",
	ErrInvalidTier:          "Invalid sensor tier",
	ErrInvalidLogLevel:      "Invalid log level",
	ErrTransportUnavailable: "Sensor transport unavailable",
	ErrMalformedResponse:    "Sensor transport returned a malformed response",
	ErrInitFailed:           "Initialization failed",
	ErrShutdownFailed:       "Shutdown failed",
	ErrTimeout:              "Operation timed out",
	ErrServe:                "HTTP server failed",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
