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

// Package extract turns raw model text into a validated StructuredAnalysis.
package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/your-org/ai-health-assistant/internal/analysis"
	"github.com/your-org/ai-health-assistant/internal/sanitize"
)

// Extractor validates model output against the expected schema. It holds no
// mutable state.
type Extractor struct {
	chatLimits sanitize.Limits
}

// New creates an extractor that bounds chat replies with chatLimits
func New(chatLimits sanitize.Limits) *Extractor {
	return &Extractor{chatLimits: chatLimits}
}

// Extract returns the StructuredAnalysis for kind, or a *Failure. An empty
// schema marks a free-text kind whose trimmed text is returned as is.
func (e *Extractor) Extract(raw string, kind analysis.Kind, schema []string) (analysis.StructuredAnalysis, error) {
	if len(schema) == 0 {
		return e.freeText(raw, kind)
	}

	obj, err := locate(raw, schema)
	if err != nil {
		return nil, err
	}
	if field := obj.firstMissing(schema); field != "" {
		return nil, failure(ReasonMissingField, field, nil)
	}

	switch kind {
	case analysis.KindSymptom:
		result, err := decodeSymptom(obj)
		if err != nil {
			return nil, err
		}
		return result, nil
	case analysis.KindXRay:
		result, err := decodeXRay(obj)
		if err != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, failure(ReasonInvalidField, "", fmt.Errorf("kind %q has no structured form", kind))
	}
}

func (e *Extractor) freeText(raw string, kind analysis.Kind) (analysis.StructuredAnalysis, error) {
	switch kind {
	case analysis.KindChat:
		reply := sanitize.Sanitize(raw, e.chatLimits)
		if reply == "" {
			return nil, failure(ReasonEmptyResponse, "", nil)
		}
		return analysis.ChatReply{Reply: reply}, nil
	case analysis.KindScheme:
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, failure(ReasonEmptyResponse, "", nil)
		}
		return analysis.SchemeAnswer{Response: text}, nil
	default:
		return nil, failure(ReasonMissingField, "", fmt.Errorf("kind %q requires a schema", kind))
	}
}

func decodeSymptom(obj object) (analysis.SymptomAnalysis, error) {
	var out analysis.SymptomAnalysis
	var err error

	if out.Analysis, err = stringField(obj, "analysis"); err != nil {
		return out, err
	}
	if out.RiskLevel, err = levelField(obj, "riskLevel"); err != nil {
		return out, err
	}
	if out.Recommendations, err = stringListField(obj, "recommendations"); err != nil {
		return out, err
	}
	if out.MedicalHelp, err = stringField(obj, "medicalHelp"); err != nil {
		return out, err
	}
	if out.Confidence, err = percentField(obj, "confidence"); err != nil {
		return out, err
	}
	return out, nil
}

type rawFinding struct {
	Name        json.RawMessage `json:"name"`
	Probability json.RawMessage `json:"probability"`
	Level       json.RawMessage `json:"level"`
	Description json.RawMessage `json:"description"`
}

func decodeXRay(obj object) (analysis.XRayAnalysis, error) {
	var out analysis.XRayAnalysis
	var err error

	if out.Confidence, err = percentField(obj, "confidence"); err != nil {
		return out, err
	}

	var findings []rawFinding
	if err := json.Unmarshal(obj["diseases"], &findings); err != nil {
		return out, failure(ReasonInvalidField, "diseases", err)
	}
	for i, f := range findings {
		finding, err := decodeFinding(f, i)
		if err != nil {
			return out, err
		}
		out.Diseases = append(out.Diseases, finding)
	}

	if out.Recommendations, err = stringListField(obj, "recommendations"); err != nil {
		return out, err
	}
	if out.OverallAssessment, err = stringField(obj, "overallAssessment"); err != nil {
		return out, err
	}
	if out.UrgencyLevel, err = levelField(obj, "urgencyLevel"); err != nil {
		return out, err
	}
	return out, nil
}

func decodeFinding(f rawFinding, i int) (analysis.Finding, error) {
	finding := object{
		"name":        f.Name,
		"probability": f.Probability,
		"level":       f.Level,
		"description": f.Description,
	}
	prefix := fmt.Sprintf("diseases[%d].", i)
	for _, field := range []string{"name", "probability", "level", "description"} {
		if value := finding[field]; value == nil || isEmptyValue(value) {
			return analysis.Finding{}, failure(ReasonInvalidField, prefix+field, nil)
		}
	}

	var out analysis.Finding
	var err error
	if out.Name, err = stringField(finding, "name"); err != nil {
		return out, renamed(err, prefix)
	}
	if out.Probability, err = percentField(finding, "probability"); err != nil {
		return out, renamed(err, prefix)
	}
	level, err := stringField(finding, "level")
	if err != nil {
		return out, renamed(err, prefix)
	}
	var ok bool
	if out.Level, ok = analysis.ParseFindingLevel(level); !ok {
		return out, failure(ReasonInvalidField, prefix+"level", fmt.Errorf("unknown level %q", level))
	}
	if out.Description, err = stringField(finding, "description"); err != nil {
		return out, renamed(err, prefix)
	}
	return out, nil
}

func renamed(err error, prefix string) error {
	if f, ok := err.(*Failure); ok {
		return failure(f.Reason, prefix+f.Field, f.Err)
	}
	return err
}

func stringField(obj object, field string) (string, error) {
	var s string
	if err := json.Unmarshal(obj[field], &s); err != nil {
		return "", failure(ReasonInvalidField, field, err)
	}
	return strings.TrimSpace(s), nil
}

func levelField(obj object, field string) (analysis.Level, error) {
	s, err := stringField(obj, field)
	if err != nil {
		return "", err
	}
	level, ok := analysis.ParseLevel(s)
	if !ok {
		return "", failure(ReasonInvalidField, field, fmt.Errorf("unknown level %q", s))
	}
	return level, nil
}

// stringListField accepts an array of strings or a single string. Blank
// entries are dropped; a list left empty is invalid.
func stringListField(obj object, field string) ([]string, error) {
	var items []string
	if err := json.Unmarshal(obj[field], &items); err != nil {
		var single string
		if err2 := json.Unmarshal(obj[field], &single); err2 != nil {
			return nil, failure(ReasonInvalidField, field, err)
		}
		items = []string{single}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, failure(ReasonInvalidField, field, nil)
	}
	return out, nil
}

// percentField accepts a JSON number or a numeric string, with an optional
// trailing '%', in [0, 100].
func percentField(obj object, field string) (float64, error) {
	var v interface{}
	if err := json.Unmarshal(obj[field], &v); err != nil {
		return 0, failure(ReasonInvalidField, field, err)
	}

	var n float64
	switch val := v.(type) {
	case float64:
		n = val
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, failure(ReasonInvalidField, field, err)
		}
		n = parsed
	default:
		return 0, failure(ReasonInvalidField, field, fmt.Errorf("expected a number, got %T", v))
	}

	if math.IsNaN(n) || n < 0 || n > 100 {
		return 0, failure(ReasonInvalidField, field, fmt.Errorf("%v out of range", n))
	}
	return n, nil
}
