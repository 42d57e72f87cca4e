package sanitize

import (
	"errors"
	"fmt"
)

// Status is the three-way result consumed by automation.
type Status int

const (
	// Failed is the zero value so an unset Outcome never reads as Clean.
	Failed Status = iota
	Clean
	Found
)

func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case Found:
		return "found"
	default:
		return "failed"
	}
}

// Outcome is the classified result of one scan or anonymize invocation.
type Outcome struct {
	Status   Status
	Entities ScanResult // set when Status == Found
	Err      error      // set when Status == Failed
}

// Classify maps a scan result or error to an Outcome. It is pure.
func Classify(result ScanResult, err error) Outcome {
	if err != nil {
		return Outcome{Status: Failed, Err: err}
	}
	if len(result) > 0 {
		return Outcome{Status: Found, Entities: result}
	}
	return Outcome{Status: Clean}
}

// ExitCode maps the outcome to a process exit status:
// Clean → 0, Found → 1, Failed → 2.
func (o Outcome) ExitCode() int {
	switch o.Status {
	case Clean:
		return 0
	case Found:
		return 1
	default:
		return 2
	}
}

// Description is a one-line human-readable summary of the outcome.
func (o Outcome) Description() string {
	switch o.Status {
	case Clean:
		return "no PII found"
	case Found:
		return fmt.Sprintf("%d PII entities found", len(o.Entities))
	}
	if o.Err == nil {
		return "failed: unknown error"
	}
	return "failed: " + o.Err.Error()
}

// IsConfigurationError reports whether the outcome failed because the request
// itself was invalid.
func (o Outcome) IsConfigurationError() bool {
	var ce *ConfigurationError
	return errors.As(o.Err, &ce)
}
