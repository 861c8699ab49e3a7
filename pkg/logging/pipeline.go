package logging

import (
	"fmt"
)

// PipelineLogger wraps a base logger with pipeline-stage context
type PipelineLogger struct {
	base     Logger
	pipeline string
	context  map[string]interface{}
}

// NewPipelineLogger creates a new pipeline-specific logger
func NewPipelineLogger(base Logger, pipeline string) *PipelineLogger {
	return &PipelineLogger{
		base:     base,
		pipeline: pipeline,
		context:  make(map[string]interface{}),
	}
}

// Info logs informational messages with pipeline context
func (p *PipelineLogger) Info(msg string, fields map[string]interface{}) {
	p.base.Info(fmt.Sprintf("[%s] %s", p.pipeline, msg), p.enrichFields(fields))
}

// Error logs error messages with pipeline context
func (p *PipelineLogger) Error(msg string, err error, fields map[string]interface{}) {
	p.base.Error(fmt.Sprintf("[%s] %s", p.pipeline, msg), err, p.enrichFields(fields))
}

// Warn logs warning messages with pipeline context
func (p *PipelineLogger) Warn(msg string, fields map[string]interface{}) {
	p.base.Warn(fmt.Sprintf("[%s] %s", p.pipeline, msg), p.enrichFields(fields))
}

// Debug logs debug messages with pipeline context
func (p *PipelineLogger) Debug(msg string, fields map[string]interface{}) {
	p.base.Debug(fmt.Sprintf("[%s] %s", p.pipeline, msg), p.enrichFields(fields))
}

// WithPipeline creates a new logger with updated pipeline context
func (p *PipelineLogger) WithPipeline(pipeline string) Logger {
	return &PipelineLogger{
		base:     p.base,
		pipeline: pipeline,
		context:  p.copyContext(),
	}
}

// WithContext creates a new logger with additional context fields
func (p *PipelineLogger) WithContext(ctx map[string]interface{}) Logger {
	newContext := p.copyContext()
	for k, v := range ctx {
		newContext[k] = v
	}

	return &PipelineLogger{
		base:     p.base,
		pipeline: p.pipeline,
		context:  newContext,
	}
}

// enrichFields combines pipeline context with provided fields
func (p *PipelineLogger) enrichFields(fields map[string]interface{}) map[string]interface{} {
	enriched := make(map[string]interface{})

	for k, v := range p.context {
		enriched[k] = v
	}

	for k, v := range fields {
		enriched[k] = v
	}

	enriched["pipeline"] = p.pipeline

	return enriched
}

// copyContext creates a copy of the current context
func (p *PipelineLogger) copyContext() map[string]interface{} {
	newContext := make(map[string]interface{})
	for k, v := range p.context {
		newContext[k] = v
	}
	return newContext
}

// StreamLogger carries broadcast-engine context through the play path
type StreamLogger struct {
	*PipelineLogger
}

// NewStreamLogger creates a logger for broadcast engine operations
func NewStreamLogger(base Logger) *StreamLogger {
	pipelineLogger := NewPipelineLogger(base, "engine")
	return &StreamLogger{PipelineLogger: pipelineLogger}
}

// WithTrack adds the current track to the logger context
func (s *StreamLogger) WithTrack(trackID, title string) Logger {
	return s.WithContext(map[string]interface{}{
		"track_id": trackID,
		"title":    title,
	})
}

// WithURL adds URL context to the stream logger
func (s *StreamLogger) WithURL(url string) Logger {
	return s.WithContext(map[string]interface{}{
		"url": url,
	})
}

// WithSource adds the track source to the logger context
func (s *StreamLogger) WithSource(source string) Logger {
	return s.WithContext(map[string]interface{}{
		"source": source,
	})
}

// RequestLogger carries HTTP route context for handler logging
type RequestLogger struct {
	*PipelineLogger
	route string
}

// NewRequestLogger creates a logger for HTTP handler operations
func NewRequestLogger(base Logger, route string) *RequestLogger {
	pipelineLogger := NewPipelineLogger(base, "http")

	routeContext := map[string]interface{}{
		"route": route,
	}

	return &RequestLogger{
		PipelineLogger: pipelineLogger.WithContext(routeContext).(*PipelineLogger),
		route:          route,
	}
}

// WithRequest adds per-request identifiers to the logger context
func (r *RequestLogger) WithRequest(method, requestID string) Logger {
	return r.WithContext(map[string]interface{}{
		"method":     method,
		"request_id": requestID,
	})
}
