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

// Package records persists a record of each answered analysis. Writes happen
// on a background dispatcher so they never delay or alter a response.
package records

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/ai-health-assistant/internal/analysis"
)

// Record is one persisted interaction
type Record struct {
	ID           string          `json:"id" bson:"_id"`
	RequestID    string          `json:"request_id" bson:"requestId"`
	UserID       string          `json:"user_id" bson:"userId"`
	RecordType   analysis.Kind   `json:"record_type" bson:"recordType"`
	Title        string          `json:"title" bson:"title"`
	Input        json.RawMessage `json:"input" bson:"-"`
	Analysis     json.RawMessage `json:"analysis" bson:"-"`
	RiskLevel    analysis.Level  `json:"risk_level,omitempty" bson:"riskLevel,omitempty"`
	UrgencyLevel analysis.Level  `json:"urgency_level,omitempty" bson:"urgencyLevel,omitempty"`
	Confidence   *float64        `json:"confidence,omitempty" bson:"confidence,omitempty"`
	Source       analysis.Source `json:"source" bson:"source"`
	IsEmergency  bool            `json:"is_emergency" bson:"isEmergency"`
	CreatedAt    time.Time       `json:"created_at" bson:"createdAt"`
}

// NewRecord derives a record from a request and the analysis served for it.
// Image bytes are never stored; only their decoded size is kept.
func NewRecord(userID, requestID string, req analysis.Request, result analysis.StructuredAnalysis, source analysis.Source) (Record, error) {
	input, err := json.Marshal(describeInput(req))
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal record input: %w", err)
	}
	output, err := json.Marshal(result)
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal record analysis: %w", err)
	}

	rec := Record{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		UserID:      userID,
		RecordType:  req.Kind(),
		Title:       titleFor(req),
		Input:       input,
		Analysis:    output,
		Source:      source,
		IsEmergency: analysis.IsEmergency(result),
		CreatedAt:   time.Now().UTC(),
	}

	switch a := result.(type) {
	case analysis.SymptomAnalysis:
		rec.RiskLevel = a.RiskLevel
		rec.Confidence = &a.Confidence
	case analysis.XRayAnalysis:
		rec.UrgencyLevel = a.UrgencyLevel
		rec.Confidence = &a.Confidence
	}
	return rec, nil
}

func describeInput(req analysis.Request) map[string]interface{} {
	switch r := req.(type) {
	case analysis.ChatRequest:
		return map[string]interface{}{"message": r.Message}
	case analysis.SymptomRequest:
		in := map[string]interface{}{"symptoms": r.Symptoms}
		if !r.PatientInfo.IsEmpty() {
			in["additionalInfo"] = r.PatientInfo
		}
		return in
	case analysis.XRayRequest:
		return map[string]interface{}{
			"imageType":          r.MimeType,
			"imageBytes":         base64.StdEncoding.DecodedLen(len(r.ImageBase64)),
			"bodyPart":           r.BodyPart,
			"clinicalIndication": r.ClinicalIndication,
		}
	case analysis.SchemeQueryRequest:
		return map[string]interface{}{
			"scheme":      r.SchemeID,
			"schemeTitle": r.SchemeTitle,
			"query":       r.Query,
			"context":     r.Context,
		}
	default:
		return map[string]interface{}{}
	}
}

func titleFor(req analysis.Request) string {
	switch r := req.(type) {
	case analysis.ChatRequest:
		return "Chat"
	case analysis.SymptomRequest:
		return "Symptom Analysis"
	case analysis.XRayRequest:
		part, err := analysis.ParseBodyPart(string(r.BodyPart))
		if err != nil {
			part = analysis.BodyPartOther
		}
		return fmt.Sprintf("X-Ray Analysis (%s)", part)
	case analysis.SchemeQueryRequest:
		if r.IsGeneral() {
			return "Chatbot Query"
		}
		name := r.SchemeTitle
		if name == "" {
			name = r.SchemeID
		}
		return fmt.Sprintf("Scheme Query: %s", name)
	default:
		return string(req.Kind())
	}
}
