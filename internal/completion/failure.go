// Copyright 2024 AI Health Assistant Project
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

package completion

import (
	"errors"
	"fmt"
)

// Cause tags why a completion call produced no usable text
type Cause string

const (
	// CauseHTTPStatus means the service answered with a non-2xx status
	CauseHTTPStatus Cause = "http_status"
	// CauseNetwork covers DNS, connection reset and similar failures
	CauseNetwork Cause = "network"
	// CauseTimeout means the call exceeded its deadline
	CauseTimeout Cause = "timeout"
	// CauseEmptyResponse means the call succeeded with no content
	CauseEmptyResponse Cause = "empty_response"
	// CauseCircuitOpen means the breaker rejected the call without dialing
	CauseCircuitOpen Cause = "circuit_open"
	// CauseUnconfigured means no credential was set
	CauseUnconfigured Cause = "unconfigured"
)

// TransportFailure is returned instead of a Result when the call fails
type TransportFailure struct {
	Cause      Cause
	StatusCode int
	Body       string
	Err        error
}

func (f *TransportFailure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("completion %s (status %d): %v", f.Cause, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("completion %s: %v", f.Cause, f.Err)
}

func (f *TransportFailure) Unwrap() error {
	return f.Err
}

// AsTransportFailure extracts a TransportFailure from err
func AsTransportFailure(err error) (*TransportFailure, bool) {
	var failure *TransportFailure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}
