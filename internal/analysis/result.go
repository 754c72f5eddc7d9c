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

package analysis

import "strings"

// Source tells whether an analysis came from the model or from a fallback
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Level is a risk or urgency grade
type Level string

// Risk and urgency grades
const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// ParseLevel normalizes a model-supplied grade
func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelLow, LevelModerate, LevelHigh, LevelCritical:
		return l, true
	}
	return "", false
}

// FindingLevel grades a single X-ray finding
type FindingLevel string

// Finding grades
const (
	FindingNormal   FindingLevel = "normal"
	FindingWarning  FindingLevel = "warning"
	FindingCritical FindingLevel = "critical"
)

// ParseFindingLevel normalizes a model-supplied finding grade
func ParseFindingLevel(s string) (FindingLevel, bool) {
	switch l := FindingLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case FindingNormal, FindingWarning, FindingCritical:
		return l, true
	}
	return "", false
}

// StructuredAnalysis is the schema-valid result returned to callers,
// whether it came from the model or from a fallback template.
type StructuredAnalysis interface {
	Kind() Kind
}

// ChatReply is a bounded plain-text conversational answer
type ChatReply struct {
	Reply string `json:"reply"`
}

// Kind implements StructuredAnalysis
func (ChatReply) Kind() Kind { return KindChat }

// SymptomAnalysis is the structured result of a symptom check
type SymptomAnalysis struct {
	Analysis        string   `json:"analysis"`
	RiskLevel       Level    `json:"riskLevel"`
	Recommendations []string `json:"recommendations"`
	MedicalHelp     string   `json:"medicalHelp"`
	Confidence      float64  `json:"confidence"`
}

// Kind implements StructuredAnalysis
func (SymptomAnalysis) Kind() Kind { return KindSymptom }

// Finding is one condition reported on an X-ray
type Finding struct {
	Name        string       `json:"name"`
	Probability float64      `json:"probability"`
	Level       FindingLevel `json:"level"`
	Description string       `json:"description"`
}

// XRayAnalysis is the structured result of an X-ray review
type XRayAnalysis struct {
	Confidence        float64   `json:"confidence"`
	Diseases          []Finding `json:"diseases"`
	Recommendations   []string  `json:"recommendations"`
	OverallAssessment string    `json:"overallAssessment"`
	UrgencyLevel      Level     `json:"urgencyLevel"`
}

// Kind implements StructuredAnalysis
func (XRayAnalysis) Kind() Kind { return KindXRay }

// SchemeAnswer is a free-text answer to a scheme or chatbot query
type SchemeAnswer struct {
	Response string `json:"response"`
}

// Kind implements StructuredAnalysis
func (SchemeAnswer) Kind() Kind { return KindScheme }

// IsEmergency reports whether a result warrants urgent attention: a critical
// risk or urgency grade, or any critical X-ray finding.
func IsEmergency(a StructuredAnalysis) bool {
	switch v := a.(type) {
	case SymptomAnalysis:
		return v.RiskLevel == LevelCritical
	case XRayAnalysis:
		if v.UrgencyLevel == LevelCritical {
			return true
		}
		for _, d := range v.Diseases {
			if d.Level == FindingCritical {
				return true
			}
		}
	}
	return false
}
