package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind классифицирует причину недоступности метрики
type ErrorKind string

const (
	ErrUpstreamTimeout       ErrorKind = "upstream_timeout"
	ErrUpstreamMalformedData ErrorKind = "upstream_malformed_data"
	ErrInsufficientHistory   ErrorKind = "insufficient_history"
	ErrPersistenceFailure    ErrorKind = "persistence_failure"
)

// MetricError структурированная ошибка калькулятора метрики.
// Агрегатор трактует ее как «метрика недоступна» и продолжает работу,
// PersistenceFailure дополнительно поднимается громче остальных.
type MetricError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *MetricError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *MetricError) Unwrap() error {
	return e.Err
}

// NewMetricError создает ошибку метрики заданного рода
func NewMetricError(kind ErrorKind, reason string, err error) *MetricError {
	return &MetricError{Kind: kind, Reason: reason, Err: err}
}

// ClassifyFetchError переводит ошибку получения данных в таксономию.
// Истекший дедлайн контекста считается таймаутом источника,
// все остальное - испорченными данными.
func ClassifyFetchError(reason string, err error) *MetricError {
	var me *MetricError
	if errors.As(err, &me) {
		return me
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewMetricError(ErrUpstreamTimeout, reason, err)
	}
	return NewMetricError(ErrUpstreamMalformedData, reason, err)
}
