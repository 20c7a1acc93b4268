package util

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing index names, credentials or unknown backends. Never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks network and upstream API failures.
	ErrTransient = errors.New("transient service error")
	// ErrData marks unusable document data; ingestion substitutes defaults and continues.
	ErrData = errors.New("data error")
	// ErrUserInput marks invalid caller input such as a blank question.
	ErrUserInput = errors.New("user input error")

	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrNotFound          = errors.New("not found")
)

func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func UserInputError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUserInput, fmt.Sprintf(format, args...))
}

func DataError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}

// Transient tags err as retryable while keeping it in the chain.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
