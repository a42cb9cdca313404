package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldClientIP       = "client_ip"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldQuery          = "query"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldUserAgent      = "user_agent"
	FieldReferer        = "referer"
	FieldSuccess        = "success"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldBackend        = "backend"
	FieldDatasetVersion = "dataset_version"
	FieldTransactions   = "transactions"
	FieldCategories     = "categories"
	FieldSession        = "session"
	FieldFingerprint    = "fingerprint"
	FieldGranularity    = "granularity"
	FieldZoomLevel      = "zoom_level"
	FieldBreakdownMode  = "breakdown_mode"
	FieldSeries         = "series"
	FieldEvicted        = "evicted"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentTimeline = "timeline"
	ComponentDataset  = "dataset"
	ComponentSource   = "source"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentBackend  = "backend"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpRead      = "read"
	OpList      = "list"
	OpLoad      = "load"
	OpReload    = "reload"
	OpToggle    = "toggle"
	OpZoom      = "zoom"
	OpHover     = "hover"
	OpPin       = "pin"
	OpRecompute = "recompute"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpMigrate   = "migrate"
	OpCleanup   = "cleanup"
	OpValidate  = "validate"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithDataset adds dataset version and size fields
func (f LogFields) WithDataset(version uint64, transactions, categories int) LogFields {
	f[FieldDatasetVersion] = version
	f[FieldTransactions] = transactions
	f[FieldCategories] = categories
	return f
}

// WithView adds the fields describing a timeline view state
func (f LogFields) WithView(session, granularity string, zoomLevel int, mode string) LogFields {
	if session != "" {
		f[FieldSession] = session
	}
	f[FieldGranularity] = granularity
	f[FieldZoomLevel] = zoomLevel
	f[FieldBreakdownMode] = mode
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
