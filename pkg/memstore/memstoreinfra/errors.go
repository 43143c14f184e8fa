package memstoreinfra

import (
	"net/http"

	"github.com/cortexdb/cortex/pkg/errx"
)

var errorRegistry = errx.NewRegistry("MEMSTOREINFRA")

var (
	ErrBackendUnavailable = errorRegistry.Register(
		"BACKEND_UNAVAILABLE",
		errx.TypeExternal,
		http.StatusBadGateway,
		"key-value backend connection dropped after retries exhausted",
	)

	ErrBackendCommand = errorRegistry.Register(
		"BACKEND_COMMAND_FAILED",
		errx.TypeExternal,
		http.StatusBadGateway,
		"key-value backend command failed",
	)
)
