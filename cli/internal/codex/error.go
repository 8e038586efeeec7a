package codex

import "errors"

// Kind classifies a generation failure. The orchestrator maps each kind to
// one user-facing message; nothing is retried automatically.
type Kind string

const (
	// KindNotFound: the codex executable is missing or not invocable.
	KindNotFound Kind = "not-found"
	// KindTimeout: the configured deadline elapsed and the process was killed.
	KindTimeout Kind = "timeout"
	// KindModelAccess: the tool rejected the requested model.
	KindModelAccess Kind = "model-access"
	// KindProcessFailed: any other non-zero exit.
	KindProcessFailed Kind = "process-failed"
	// KindParseFailed: exit 0 but no completed agent message was observed.
	KindParseFailed Kind = "parse-failed"
	// KindEmptyResponse: a message was observed but normalized to nothing.
	KindEmptyResponse Kind = "empty-response"
)

// CliError is the tagged failure produced by the client. Detail carries a
// bounded tail of the process output for the diagnostic log; Msg is safe to
// show to the user.
type CliError struct {
	Kind   Kind
	Msg    string
	Detail string
	Err    error
}

func (e *CliError) Error() string {
	if e == nil {
		return ""
	}
	return e.Msg
}

func (e *CliError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsKind reports whether err is (or wraps) a *CliError of the given kind.
func IsKind(err error, kind Kind) bool {
	var cliErr *CliError
	return errors.As(err, &cliErr) && cliErr.Kind == kind
}
