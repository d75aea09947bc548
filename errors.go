package plughost

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shaban/plughost/engine/action"
	"github.com/shaban/plughost/logging"
	"github.com/shaban/plughost/plugins"
)

// Error categories. Every failing engine call wraps exactly one of them, so
// callers classify failures with errors.Is.
var (
	// ErrPrecondition covers invalid ids and arguments and calls made while
	// another operation, an idle callback or a pending action is in progress.
	ErrPrecondition = errors.New("precondition violation")
	// ErrResourceExhausted is returned when the registry is full.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrUnsupported is returned for binary/format combinations this build
	// cannot host and for unknown file extensions.
	ErrUnsupported = plugins.ErrUnsupported
	// ErrLoadFailure is returned when a loader fails to produce an instance.
	ErrLoadFailure = plugins.ErrLoadFailure
	// ErrTimeout is returned when the processing goroutine did not pick up a
	// pending action in time. The action was withdrawn.
	ErrTimeout = action.ErrTimeout
)

// Messages reported through LastError.
const (
	msgBusy            = "An operation is still being processed, please wait for it to finish"
	msgActionPending   = "Invalid engine internal data"
	msgInvalidID       = "Invalid plugin Id"
	msgMaxPlugins      = "Maximum number of plugins reached"
	msgRunningOption   = "Cannot set this option while engine is running"
	msgUnknownFileExt  = "Unknown file extension"
	msgMissingFile     = "Requested file does not exist or is not a readable file"
	msgInvalidFilename = "Invalid filename"
)

func precondition(msg string) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, msg)
}

// ErrorHandler receives faults the engine suppresses instead of returning:
// listener panics, plugin panics during idle or processing, bridge exits.
type ErrorHandler interface {
	HandleError(error)
}

// DefaultErrorHandler logs errors at error level.
type DefaultErrorHandler struct {
	Logger logging.Logger
}

// HandleError implements ErrorHandler.
func (h *DefaultErrorHandler) HandleError(err error) {
	l := h.Logger
	if l == nil {
		l = logging.Default()
	}
	l.Error("engine error", "error", err)
}

// LoggingErrorHandler logs every suppressed fault, counts it and passes it on
// to Next, if set.
type LoggingErrorHandler struct {
	Logger logging.Logger
	Next   ErrorHandler

	faults atomic.Int64
}

// NewLoggingErrorHandler logs to l and forwards to next, which may be nil.
func NewLoggingErrorHandler(l logging.Logger, next ErrorHandler) *LoggingErrorHandler {
	if l == nil {
		l = logging.Default()
	}
	return &LoggingErrorHandler{Logger: l, Next: next}
}

// HandleError implements ErrorHandler.
func (h *LoggingErrorHandler) HandleError(err error) {
	n := h.faults.Add(1)
	h.Logger.Error("suppressed engine fault", "error", err, "faults", n)
	if h.Next != nil {
		h.Next.HandleError(err)
	}
}

// Faults returns the number of faults handled so far.
func (h *LoggingErrorHandler) Faults() int64 { return h.faults.Load() }

// PanicErrorHandler turns every suppressed fault into a panic carrying an
// error that wraps it. It backs strict mode, where a misbehaving plugin or
// listener stops the host instead of being isolated.
type PanicErrorHandler struct{}

// HandleError implements ErrorHandler.
func (PanicErrorHandler) HandleError(err error) {
	panic(fmt.Errorf("strict mode: %w", err))
}

// lastError is a single overwritten slot.
type lastError struct {
	mu  sync.Mutex
	msg string
}

func (l *lastError) set(msg string) {
	l.mu.Lock()
	l.msg = msg
	l.mu.Unlock()
}

func (l *lastError) get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.msg
}

// LastError returns the message of the most recent failure.
func (e *Engine) LastError() string { return e.lastErr.get() }

// SetLastError overwrites the last error message.
func (e *Engine) SetLastError(msg string) { e.lastErr.set(msg) }

// fail records err as the last error and returns it unchanged.
func (e *Engine) fail(err error) error {
	if err != nil {
		e.lastErr.set(err.Error())
	}
	return err
}
