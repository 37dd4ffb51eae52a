package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrAnalysis wraps every failure of the analysis capability
	ErrAnalysis = errors.New("analysis failed")

	ErrAnalysisStatus    = fmt.Errorf("%w: non-2xx status", ErrAnalysis)
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrAnalysis)
	ErrRateLimited       = fmt.Errorf("%w: rate limited", ErrAnalysis)
	ErrMissingAPIKey     = errors.New("analysis API key is not configured")
	ErrInvalidLimiter    = errors.New("invalid rate limiter settings")
	ErrDispatcherStopped = errors.New("analysis dispatcher stopped")
)
