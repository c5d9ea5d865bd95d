package logger

import (
	"fmt"

	"github.com/hibiken/asynq"
)

// AsynqLoggerAdapter adapts the Logger interface to asynq.Logger
type AsynqLoggerAdapter struct {
	logger Logger
}

// NewAsynqLoggerAdapter creates a new asynq logger adapter
func NewAsynqLoggerAdapter(log Logger) asynq.Logger {
	return &AsynqLoggerAdapter{logger: log}
}

// Debug implements asynq.Logger
func (a *AsynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

// Info implements asynq.Logger
func (a *AsynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

// Warn implements asynq.Logger
func (a *AsynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

// Error implements asynq.Logger
func (a *AsynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

// Fatal implements asynq.Logger
func (a *AsynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}
