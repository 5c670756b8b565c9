package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/davidbz/roomgen/internal/observability"
)

// zapRecoveryLogger adapts the base logger to gorilla's RecoveryHandlerLogger.
type zapRecoveryLogger struct{}

func (zapRecoveryLogger) Println(v ...interface{}) {
	observability.FromContext(context.Background()).Error("panic recovered",
		observability.String("panic", fmt.Sprint(v...)),
	)
}

// Recovery turns handler panics into 500 responses and logs them.
func Recovery() Middleware {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(zapRecoveryLogger{}),
		handlers.PrintRecoveryStack(false),
	)
}
