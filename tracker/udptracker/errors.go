// Copyright 2024 xgfone
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package udptracker

import "fmt"

// Step is the step of the UDP tracker client where an error occurs.
type Step uint8

// Predefine some steps.
const (
	StepBind Step = iota + 1
	StepConnect
	StepAnnounce
	StepScrape
)

func (s Step) String() string {
	switch s {
	case StepBind:
		return "bind"
	case StepConnect:
		return "connect"
	case StepAnnounce:
		return "announce"
	case StepScrape:
		return "scrape"
	default:
		return fmt.Sprintf("Step(%d)", s)
	}
}

// ErrorKind is the category of an error returned by the client.
//
// ErrorKind implements the error interface, so it can be used as the target
// of errors.Is, for example errors.Is(err, udptracker.RecvTimeout).
type ErrorKind uint8

// Predefine some error kinds.
const (
	_ ErrorKind = iota
	BindFailed
	ResolveFailed
	SendFailed
	RecvTimeout
	RecvFailed
	ProtocolMismatch // The transaction id or action mismatches.
	ShortResponse    // The response is shorter than its fixed header.
	TrackerFailure   // The tracker replies with the error action.
)

func (k ErrorKind) Error() string { return k.String() }

func (k ErrorKind) String() string {
	switch k {
	case BindFailed:
		return "bind failed"
	case ResolveFailed:
		return "resolve failed"
	case SendFailed:
		return "send failed"
	case RecvTimeout:
		return "recv timeout"
	case RecvFailed:
		return "recv failed"
	case ProtocolMismatch:
		return "protocol mismatch"
	case ShortResponse:
		return "short response"
	case TrackerFailure:
		return "tracker failure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is the error returned by the client.
type Error struct {
	Step Step
	Kind ErrorKind
	Err  error
}

func newError(step Step, kind ErrorKind, err error) *Error {
	return &Error{Step: step, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("udptracker: %s: %s", e.Step, e.Kind)
	}
	return fmt.Sprintf("udptracker: %s: %s: %s", e.Step, e.Kind, e.Err)
}

// Is reports whether target is the kind of the error.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cause is the same as Unwrap, which is used by github.com/pkg/errors.
func (e *Error) Cause() error { return e.Err }
