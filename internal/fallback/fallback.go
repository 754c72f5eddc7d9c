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

// Package fallback holds the static responses served when the model cannot
// be reached or its output cannot be validated.
package fallback

import (
	"fmt"
	"strings"

	"github.com/your-org/ai-health-assistant/internal/analysis"
)

// ChatReply is served for chat requests
const ChatReply = "Sorry, I could not reach the assistant right now. Please try again."

// GeneralAnswer is served for chatbot queries not tied to a scheme
const GeneralAnswer = "I'm unable to answer right now. Please try again shortly, or call the national health helpline 1800-180-1104 for assistance."

const symptomAnalysisFormat = "I've analyzed your symptoms: \"%s\". While I can provide general guidance, " +
	"it's important to consult with a healthcare professional for accurate diagnosis."

var symptomTemplate = analysis.SymptomAnalysis{
	RiskLevel: analysis.LevelModerate,
	Recommendations: []string{
		"Monitor your symptoms closely",
		"Keep a symptom diary",
		"Stay hydrated and get adequate rest",
		"Consider over-the-counter remedies for symptom relief",
		"Consult a healthcare provider for proper evaluation",
	},
	MedicalHelp: "Seek medical attention if symptoms worsen, persist for more than a few days, or if you experience severe symptoms like difficulty breathing, chest pain, confusion, or high fever.",
	Confidence:  75,
}

var xrayTemplate = analysis.XRayAnalysis{
	Confidence: 50,
	Diseases: []analysis.Finding{
		{
			Name:        "Automated analysis unavailable",
			Probability: 0,
			Level:       analysis.FindingWarning,
			Description: "The image could not be analyzed automatically. A qualified radiologist should review it.",
		},
	},
	Recommendations: []string{
		"Have the X-ray reviewed by a qualified radiologist",
		"Share the image and any symptoms with your doctor",
		"Seek urgent care if you have severe pain or difficulty breathing",
	},
	OverallAssessment: "Automated analysis is unavailable for this image. Please consult a radiologist for an accurate reading.",
	UrgencyLevel:      analysis.LevelModerate,
}

// For returns the fallback for req. The result never shares memory with the
// templates.
func For(req analysis.Request) analysis.StructuredAnalysis {
	switch r := req.(type) {
	case analysis.ChatRequest:
		return analysis.ChatReply{Reply: ChatReply}
	case analysis.SymptomRequest:
		return Symptom(r.Symptoms)
	case analysis.XRayRequest:
		return XRay()
	case analysis.SchemeQueryRequest:
		return Scheme(r)
	default:
		return analysis.ChatReply{Reply: ChatReply}
	}
}

// Symptom returns the symptom fallback quoting the submitted symptoms
func Symptom(symptoms string) analysis.SymptomAnalysis {
	out := symptomTemplate
	out.Analysis = fmt.Sprintf(symptomAnalysisFormat, strings.TrimSpace(symptoms))
	out.Recommendations = append([]string(nil), symptomTemplate.Recommendations...)
	return out
}

// SymptomRecommendations returns a copy of the fixed recommendation list
func SymptomRecommendations() []string {
	return append([]string(nil), symptomTemplate.Recommendations...)
}

// XRay returns the X-ray fallback
func XRay() analysis.XRayAnalysis {
	out := xrayTemplate
	out.Diseases = append([]analysis.Finding(nil), xrayTemplate.Diseases...)
	out.Recommendations = append([]string(nil), xrayTemplate.Recommendations...)
	return out
}

// Scheme returns the scheme fallback naming the scheme when one was given
func Scheme(r analysis.SchemeQueryRequest) analysis.SchemeAnswer {
	if r.IsGeneral() {
		return analysis.SchemeAnswer{Response: GeneralAnswer}
	}
	name := strings.TrimSpace(r.SchemeTitle)
	if name == "" {
		name = strings.TrimSpace(r.SchemeID)
	}
	return analysis.SchemeAnswer{Response: fmt.Sprintf(
		"I couldn't retrieve details about %s right now. Please check the official scheme website or call the national health helpline 1800-180-1104 for eligibility and enrollment information.",
		name)}
}
