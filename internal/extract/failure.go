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

package extract

import (
	"errors"
	"fmt"
)

// Reason classifies an extraction failure
type Reason string

const (
	ReasonNoJSONFound   Reason = "no_json_found"
	ReasonMalformedJSON Reason = "malformed_json"
	ReasonMissingField  Reason = "missing_field"
	ReasonInvalidField  Reason = "invalid_field"
	ReasonEmptyResponse Reason = "empty_response"
)

// Sentinels for errors.Is
var (
	ErrNoJSONFound   = errors.New("no JSON object found in model output")
	ErrMalformedJSON = errors.New("model output contains malformed JSON")
	ErrMissingField  = errors.New("required field missing from model output")
	ErrInvalidField  = errors.New("field in model output has an invalid value")
	ErrEmptyResponse = errors.New("model output is empty")
)

var sentinels = map[Reason]error{
	ReasonNoJSONFound:   ErrNoJSONFound,
	ReasonMalformedJSON: ErrMalformedJSON,
	ReasonMissingField:  ErrMissingField,
	ReasonInvalidField:  ErrInvalidField,
	ReasonEmptyResponse: ErrEmptyResponse,
}

// Failure is the error returned by Extract
type Failure struct {
	Reason Reason
	Field  string
	Err    error
}

func (f *Failure) Error() string {
	msg := sentinels[f.Reason].Error()
	if f.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, f.Field)
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

// Is matches the sentinel for the failure's reason
func (f *Failure) Is(target error) bool {
	return sentinels[f.Reason] == target
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func failure(reason Reason, field string, err error) *Failure {
	return &Failure{Reason: reason, Field: field, Err: err}
}

// ReasonOf returns the failure reason carried by err, or "" if none
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
