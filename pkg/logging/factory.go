package logging

import (
	"fmt"
	"sync"
)

// DefaultLoggerFactory implements LoggerFactory using zap loggers
type DefaultLoggerFactory struct {
	loggers map[string]Logger
	mu      sync.RWMutex
}

// NewLoggerFactory creates a new logger factory
func NewLoggerFactory() LoggerFactory {
	return &DefaultLoggerFactory{
		loggers: make(map[string]Logger),
	}
}

// CreateLogger creates a basic logger for the specified component
func (f *DefaultLoggerFactory) CreateLogger(component string) Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if logger, exists := f.loggers[component]; exists {
		return logger
	}

	zapLogger, err := NewZapLogger(component)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger for component %s: %v", component, err))
	}

	f.loggers[component] = zapLogger
	return zapLogger
}

// CreateEngineLogger creates a logger for broadcast engine operations
func (f *DefaultLoggerFactory) CreateEngineLogger() Logger {
	baseLogger := f.CreateLogger("radio")
	return NewStreamLogger(baseLogger)
}

// CreateFetcherLogger creates a logger for source fetcher operations
func (f *DefaultLoggerFactory) CreateFetcherLogger(source string) Logger {
	baseLogger := f.CreateLogger("fetch")
	return NewPipelineLogger(baseLogger, source)
}

// CreateRequestLogger creates a logger for HTTP handler operations
func (f *DefaultLoggerFactory) CreateRequestLogger(route string) Logger {
	baseLogger := f.CreateLogger("http")
	return NewRequestLogger(baseLogger, route)
}

// DatabaseLoggerFactory extends the default factory with persistence of
// warning and error entries into the stream-error journal
type DatabaseLoggerFactory struct {
	*DefaultLoggerFactory
	repository LogRepository
}

// NewDatabaseLoggerFactory creates a logger factory with database persistence
func NewDatabaseLoggerFactory(repository LogRepository) LoggerFactory {
	return &DatabaseLoggerFactory{
		DefaultLoggerFactory: &DefaultLoggerFactory{
			loggers: make(map[string]Logger),
		},
		repository: repository,
	}
}

// CreateLogger creates a database-backed logger for the specified component
func (f *DatabaseLoggerFactory) CreateLogger(component string) Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if logger, exists := f.loggers[component]; exists {
		return logger
	}

	baseLogger, err := NewZapLogger(component)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger for component %s: %v", component, err))
	}

	dbLogger := NewDatabaseLogger(baseLogger, component, f.repository)
	f.loggers[component] = dbLogger
	return dbLogger
}

// CreateEngineLogger creates a database-backed broadcast engine logger
func (f *DatabaseLoggerFactory) CreateEngineLogger() Logger {
	baseLogger := f.CreateLogger("radio")
	return NewStreamLogger(baseLogger)
}

// CreateFetcherLogger creates a database-backed source fetcher logger
func (f *DatabaseLoggerFactory) CreateFetcherLogger(source string) Logger {
	baseLogger := f.CreateLogger("fetch")
	return NewPipelineLogger(baseLogger, source)
}

// CreateRequestLogger creates a database-backed HTTP handler logger
func (f *DatabaseLoggerFactory) CreateRequestLogger(route string) Logger {
	baseLogger := f.CreateLogger("http")
	return NewRequestLogger(baseLogger, route)
}

// GlobalLoggerFactory provides a singleton logger factory instance
var (
	globalFactory LoggerFactory
	factoryMu     sync.RWMutex
)

// GetGlobalLoggerFactory returns the global logger factory instance
func GetGlobalLoggerFactory() LoggerFactory {
	factoryMu.RLock()
	factory := globalFactory
	factoryMu.RUnlock()
	if factory != nil {
		return factory
	}

	factoryMu.Lock()
	defer factoryMu.Unlock()
	if globalFactory == nil {
		globalFactory = NewLoggerFactory()
	}
	return globalFactory
}

// SetGlobalLoggerFactory sets the global logger factory (useful for dependency injection)
func SetGlobalLoggerFactory(factory LoggerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	globalFactory = factory
}
