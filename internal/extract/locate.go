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
	"encoding/json"
	"strings"
)

// object is a parsed JSON object with its raw field values
type object map[string]json.RawMessage

// locate finds the JSON object in raw model text. The span from the first
// '{' to the last '}' is tried first; if it does not parse, every balanced
// object is tried in order of appearance. The first candidate holding every
// schema field wins, otherwise the first candidate that parsed at all.
func locate(raw string, schema []string) (object, error) {
	first := strings.IndexByte(raw, '{')
	last := strings.LastIndexByte(raw, '}')
	if first < 0 || last < 0 || last < first {
		return nil, failure(ReasonNoJSONFound, "", nil)
	}

	obj, err := parseObject(raw[first : last+1])
	if err == nil {
		if obj.hasAll(schema) {
			return obj, nil
		}
		// the span may wrap the real answer
		if best := scanObjects(raw, schema); best != nil && best.hasAll(schema) {
			return best, nil
		}
		return obj, nil
	}

	if best := scanObjects(raw, schema); best != nil {
		return best, nil
	}
	return nil, failure(ReasonMalformedJSON, "", err)
}

// scanObjects walks every balanced {...} region. It returns the first one
// holding every schema field, else the first that parsed, else nil.
func scanObjects(raw string, schema []string) object {
	var firstParsed object
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		end := balancedEnd(raw, start)
		if end < 0 {
			continue
		}
		obj, err := parseObject(raw[start : end+1])
		if err != nil {
			continue
		}
		if obj.hasAll(schema) {
			return obj
		}
		if firstParsed == nil {
			firstParsed = obj
		}
	}
	return firstParsed
}

// balancedEnd returns the index of the '}' closing the '{' at start, skipping
// braces inside JSON strings, or -1 if the object never closes.
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseObject(s string) (object, error) {
	var obj object
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, failure(ReasonMalformedJSON, "", nil)
	}
	return obj, nil
}

func (o object) hasAll(schema []string) bool {
	return o.firstMissing(schema) == ""
}

// firstMissing returns the first schema field that is absent, null or empty
func (o object) firstMissing(schema []string) string {
	for _, field := range schema {
		value, ok := o[field]
		if !ok || isEmptyValue(value) {
			return field
		}
	}
	return ""
}

func isEmptyValue(raw json.RawMessage) bool {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return true
	}
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	}
	return false
}
