package database

import "errors"

var (
	// ErrPersistence wraps every storage failure
	ErrPersistence = errors.New("persistence failed")

	ErrAlarmNotFound = errors.New("alarm not found")
	ErrWriterClosed  = errors.New("writer closed")
	errFailedOpenDB  = errors.New("failed to open database")
	errFailedWAL     = errors.New("failed to enable WAL mode")
	errFailedSchema  = errors.New("failed to initialize schema")
)
