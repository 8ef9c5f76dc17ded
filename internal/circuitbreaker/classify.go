package circuitbreaker

import (
	"context"
	"errors"
	"os"
)

// statusCoder is implemented by errors that carry an upstream HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Weight returns how much err counts towards tripping the breaker.
//
//   - nil, 4xx other than 429: 0
//   - 429: 0.5
//   - 5xx, unexpected 2xx/3xx, network and other errors: 1.0
//   - timeouts: 1.5
func Weight(err error) float64 {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		// The caller went away; says nothing about the upstream.
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return statusWeight(sc.HTTPStatus())
	}
	return 1.0
}

func statusWeight(code int) float64 {
	switch {
	case code == 429:
		return 0.5
	case code >= 400 && code < 500:
		return 0
	default:
		return 1.0
	}
}
