package logging

// DatabaseLogger wraps a base logger and persists warning and error
// entries so stream failures survive process restarts. Persistence is
// best-effort and never fails the original log call.
type DatabaseLogger struct {
	base       Logger
	component  string
	repository LogRepository
}

// NewDatabaseLogger creates a new database-backed logger
func NewDatabaseLogger(base Logger, component string, repository LogRepository) Logger {
	return &DatabaseLogger{
		base:       base,
		component:  component,
		repository: repository,
	}
}

// Info logs informational messages
func (d *DatabaseLogger) Info(msg string, fields map[string]interface{}) {
	d.base.Info(msg, fields)
}

// Error logs error messages and persists them
func (d *DatabaseLogger) Error(msg string, err error, fields map[string]interface{}) {
	d.base.Error(msg, err, fields)
	d.persistLog("ERROR", msg, err, fields)
}

// Warn logs warning messages and persists them
func (d *DatabaseLogger) Warn(msg string, fields map[string]interface{}) {
	d.base.Warn(msg, fields)
	d.persistLog("WARN", msg, nil, fields)
}

// Debug logs debug messages
func (d *DatabaseLogger) Debug(msg string, fields map[string]interface{}) {
	d.base.Debug(msg, fields)
}

// WithPipeline creates a new logger with pipeline context
func (d *DatabaseLogger) WithPipeline(pipeline string) Logger {
	return &DatabaseLogger{
		base:       d.base.WithPipeline(pipeline),
		component:  d.component,
		repository: d.repository,
	}
}

// WithContext creates a new logger with additional context fields
func (d *DatabaseLogger) WithContext(ctx map[string]interface{}) Logger {
	return &DatabaseLogger{
		base:       d.base.WithContext(ctx),
		component:  d.component,
		repository: d.repository,
	}
}

// persistLog saves the log entry to the journal
func (d *DatabaseLogger) persistLog(level, message string, err error, fields map[string]interface{}) {
	if d.repository == nil {
		return
	}

	entry := LogEntry{
		Component: d.component,
		Level:     level,
		Message:   message,
		Fields:    fields,
	}

	if err != nil {
		entry.Error = err.Error()
	}

	if trackID, ok := fields["track_id"].(string); ok {
		entry.TrackID = trackID
	}
	if source, ok := fields["source"].(string); ok {
		entry.Source = source
	}

	// Non-blocking so a slow database never stalls the play path
	go func() {
		if saveErr := d.repository.SaveLog(entry); saveErr != nil {
			d.base.Error("Failed to persist log entry", saveErr, map[string]interface{}{
				"original_message": message,
				"original_level":   level,
			})
		}
	}()
}
