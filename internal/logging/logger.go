// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log categories attached to pipeline and query log lines.
const (
	CategoryVectorize = "vectorize"
	CategoryRAGSearch = "rag-search"
	CategoryRAGDB     = "rag-db"
	CategoryRAGLLM    = "rag-llm"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// ScrapeCategory names the category for one board's scrape pass.
func ScrapeCategory(board string) string {
	return "scrape-" + board
}

// WithCategory returns a child logger tagged with category.
func WithCategory(logger *zap.Logger, category string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("category", category))
}
