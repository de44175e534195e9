package errors

// Result codes shared by the detection core and the daemon
const (
	// Success; never carried by a non-nil error
	ErrOK ErrorCode = "ok"

	// Parameter and lifecycle errors
	ErrInvalidParam       ErrorCode = "invalid_param"
	ErrNotInitialized     ErrorCode = "not_initialized"
	ErrAlreadyInitialized ErrorCode = "already_initialized"
	ErrConfigInvalid      ErrorCode = "config_invalid"

	// Storage errors
	ErrOutOfMemory ErrorCode = "out_of_memory"
	ErrBufferFull  ErrorCode = "buffer_full"

	// Metric errors
	ErrMetricNotFound     ErrorCode = "metric_not_found"
	ErrMetricDisabled     ErrorCode = "metric_disabled"
	ErrMetricTypeMismatch ErrorCode = "metric_type_mismatch"
	ErrMetricNameTooLong  ErrorCode = "metric_name_too_long"

	// Algorithm errors
	ErrAlgorithmFailed       ErrorCode = "algorithm_failed"
	ErrAlgorithmNotSupported ErrorCode = "algorithm_not_supported"
	ErrCustomAlgorithmNull   ErrorCode = "custom_algorithm_null"

	// Detections
	ErrThresholdExceeded  ErrorCode = "threshold_exceeded"
	ErrTrendAnomaly       ErrorCode = "trend_anomaly"
	ErrCustomDetection    ErrorCode = "custom_detection"
	ErrStatisticalAnomaly ErrorCode = "statistical_anomaly"

	// Runtime errors
	ErrTimeout          ErrorCode = "operation_timeout"
	ErrTimestampInvalid ErrorCode = "timestamp_invalid"

	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrAlreadyRunning ErrorCode = "already_running"

	// Application errors
	ErrInitApp  ErrorCode = "init_app_failed"
	ErrMainLoop ErrorCode = "main_loop_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrOK:                    "Success",
	ErrInvalidParam:          "Invalid parameter",
	ErrNotInitialized:        "Library not initialized",
	ErrAlreadyInitialized:    "Library already initialized",
	ErrConfigInvalid:         "Invalid configuration",
	ErrOutOfMemory:           "Out of memory",
	ErrBufferFull:            "Buffer full",
	ErrMetricNotFound:        "Metric not found",
	ErrMetricDisabled:        "Metric disabled",
	ErrMetricTypeMismatch:    "Metric type mismatch",
	ErrMetricNameTooLong:     "Metric name too long",
	ErrAlgorithmFailed:       "Algorithm failed",
	ErrAlgorithmNotSupported: "Algorithm not supported",
	ErrCustomAlgorithmNull:   "Custom algorithm is null",
	ErrThresholdExceeded:     "Threshold exceeded",
	ErrTrendAnomaly:          "Trend anomaly detected",
	ErrCustomDetection:       "Custom detection triggered",
	ErrStatisticalAnomaly:    "Statistical anomaly detected",
	ErrTimeout:               "Operation timeout",
	ErrTimestampInvalid:      "Invalid timestamp",
	ErrInternal:              "Internal error occurred",
	ErrInvalidArgument:       "Invalid argument provided",
	ErrUnavailable:           "Service unavailable",
	ErrInvalidConfig:         "Invalid configuration",
	ErrBindFlags:             "Failed to bind flags",
	ErrReadConfig:            "Failed to read config file",
	ErrInvalidInterval:       "Invalid interval value",
	ErrInvalidLogLevel:       "Invalid log level",
	ErrInitFailed:            "Initialization failed",
	ErrShutdownFailed:        "Shutdown failed",
	ErrAlreadyRunning:        "Another instance is already running",
	ErrInitApp:               "Failed to initialize application",
	ErrMainLoop:              "Error in main loop",
}

// anomalies are the codes an algorithm reports when it detects something,
// as opposed to codes describing a failed operation.
var anomalies = map[ErrorCode]bool{
	ErrThresholdExceeded:  true,
	ErrTrendAnomaly:       true,
	ErrCustomDetection:    true,
	ErrStatisticalAnomaly: true,
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return "Unknown error"
}

// IsAnomaly reports whether code is a detection result
func IsAnomaly(code ErrorCode) bool {
	return anomalies[code]
}
