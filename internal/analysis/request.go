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

// Package analysis defines the request and result types shared by the
// analysis pipeline: the four request kinds accepted from callers and the
// schema-valid StructuredAnalysis variants returned to them.
package analysis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which analysis flow a request belongs to
type Kind string

const (
	// KindChat is a short conversational reply
	KindChat Kind = "chat"
	// KindSymptom is a structured symptom analysis
	KindSymptom Kind = "symptom_analysis"
	// KindXRay is a structured X-ray image analysis
	KindXRay Kind = "xray_analysis"
	// KindScheme is a free-text answer about a health scheme or a general chatbot query
	KindScheme Kind = "scheme_query"
)

const (
	// MaxMessageLength bounds chat messages, symptom text and queries
	MaxMessageLength = 4000
	// MaxImageBytes bounds decoded X-ray image size
	MaxImageBytes = 10 << 20
)

// ErrInvalidRequest is wrapped by every request validation failure
var ErrInvalidRequest = errors.New("invalid request")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Request is the tagged union over the four request kinds
type Request interface {
	Kind() Kind
	Validate() error
}

// ChatRequest is a free-form health question
type ChatRequest struct {
	Message string
}

// Kind implements Request
func (ChatRequest) Kind() Kind { return KindChat }

// Validate implements Request
func (r ChatRequest) Validate() error {
	return validateText("message", r.Message)
}

// PatientInfo is optional context attached to a symptom analysis
type PatientInfo struct {
	Age                *int     `json:"age,omitempty"`
	Gender             string   `json:"gender,omitempty"`
	MedicalHistory     []string `json:"medicalHistory,omitempty"`
	CurrentMedications []string `json:"currentMedications,omitempty"`
	Allergies          []string `json:"allergies,omitempty"`
	RecentTravel       *bool    `json:"recentTravel,omitempty"`
	PainScale          *int     `json:"painScale,omitempty"`
}

// IsEmpty reports whether no patient field was supplied
func (p *PatientInfo) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Age == nil && p.Gender == "" && len(p.MedicalHistory) == 0 &&
		len(p.CurrentMedications) == 0 && len(p.Allergies) == 0 &&
		p.RecentTravel == nil && p.PainScale == nil
}

// SymptomRequest asks for a structured analysis of free-text symptoms
type SymptomRequest struct {
	Symptoms    string
	PatientInfo *PatientInfo
}

// Kind implements Request
func (SymptomRequest) Kind() Kind { return KindSymptom }

// Validate implements Request
func (r SymptomRequest) Validate() error {
	if err := validateText("symptoms", r.Symptoms); err != nil {
		return err
	}
	if r.PatientInfo == nil {
		return nil
	}
	if age := r.PatientInfo.Age; age != nil && (*age < 0 || *age > 130) {
		return invalid("additionalInfo.age must be between 0 and 130")
	}
	if pain := r.PatientInfo.PainScale; pain != nil && (*pain < 0 || *pain > 10) {
		return invalid("additionalInfo.painScale must be between 0 and 10")
	}
	return nil
}

// BodyPart is the anatomical region shown on an X-ray
type BodyPart string

// Supported body parts
const (
	BodyPartChest       BodyPart = "chest"
	BodyPartAbdomen     BodyPart = "abdomen"
	BodyPartPelvis      BodyPart = "pelvis"
	BodyPartSpine       BodyPart = "spine"
	BodyPartExtremities BodyPart = "extremities"
	BodyPartSkull       BodyPart = "skull"
	BodyPartOther       BodyPart = "other"
)

// ParseBodyPart normalizes a caller-supplied body part, defaulting to chest
func ParseBodyPart(s string) (BodyPart, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BodyPartChest, nil
	}
	switch bp := BodyPart(s); bp {
	case BodyPartChest, BodyPartAbdomen, BodyPartPelvis, BodyPartSpine,
		BodyPartExtremities, BodyPartSkull, BodyPartOther:
		return bp, nil
	}
	return "", invalid("unsupported bodyPart %q", s)
}

// XRayRequest carries a base64-encoded radiograph
type XRayRequest struct {
	ImageBase64        string
	MimeType           string
	BodyPart           BodyPart
	ClinicalIndication string
}

// Kind implements Request
func (XRayRequest) Kind() Kind { return KindXRay }

// Validate implements Request
func (r XRayRequest) Validate() error {
	if strings.TrimSpace(r.ImageBase64) == "" {
		return invalid("imageData is required")
	}
	if !strings.HasPrefix(strings.ToLower(r.MimeType), "image/") {
		return invalid("imageType must be an image mime type")
	}
	if base64.StdEncoding.DecodedLen(len(r.ImageBase64)) > MaxImageBytes {
		return invalid("imageData exceeds %d bytes", MaxImageBytes)
	}
	if _, err := base64.StdEncoding.DecodeString(r.ImageBase64); err != nil {
		return invalid("imageData is not valid base64")
	}
	if _, err := ParseBodyPart(string(r.BodyPart)); err != nil {
		return err
	}
	return nil
}

// SplitDataURL strips a "data:<mime>;base64," prefix. The mime type from the
// prefix is returned when present.
func SplitDataURL(data string) (payload, mimeType string) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "data:") {
		return data, ""
	}
	header, body, ok := strings.Cut(data, ",")
	if !ok {
		return data, ""
	}
	header = strings.TrimPrefix(header, "data:")
	header = strings.TrimSuffix(header, ";base64")
	return body, header
}

// SchemeQueryRequest is a question about a health scheme. With no scheme id
// or title it is a general chatbot query answered from Context.
type SchemeQueryRequest struct {
	SchemeID    string
	SchemeTitle string
	Query       string
	Context     string
}

// Kind implements Request
func (SchemeQueryRequest) Kind() Kind { return KindScheme }

// Validate implements Request
func (r SchemeQueryRequest) Validate() error {
	return validateText("query", r.Query)
}

// IsGeneral reports whether the query is not tied to a scheme
func (r SchemeQueryRequest) IsGeneral() bool {
	return strings.TrimSpace(r.SchemeID) == "" && strings.TrimSpace(r.SchemeTitle) == ""
}

func validateText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", field)
	}
	if len(value) > MaxMessageLength {
		return invalid("%s is too long (max %d characters)", field, MaxMessageLength)
	}
	return nil
}
