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

// Package prompt builds the outbound completion payload for each analysis kind.
package prompt

import (
	"fmt"
	"strings"

	"github.com/your-org/ai-health-assistant/internal/analysis"
)

// Expected JSON fields per structured kind, in validation order
var (
	SymptomSchema = []string{"analysis", "riskLevel", "recommendations", "medicalHelp", "confidence"}
	XRaySchema    = []string{"confidence", "diseases", "recommendations", "overallAssessment", "urgencyLevel"}
)

// Sampling holds generation parameters for one kind of call
type Sampling struct {
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float32 `mapstructure:"top_p"`
}

// Image is an inline image attached to a multimodal payload
type Image struct {
	MimeType string
	Base64   string
}

// DataURL renders the image as a data URL
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MimeType, i.Base64)
}

// Payload is everything the completion client needs for one call
type Payload struct {
	Kind           analysis.Kind
	System         string
	User           string
	Image          *Image
	Sampling       Sampling
	ExpectedSchema []string
}

// Multimodal reports whether the payload carries an image
func (p Payload) Multimodal() bool {
	return p.Image != nil
}

// Config holds configuration for prompt generation
type Config struct {
	Chat     Sampling
	Analysis Sampling
}

// DefaultConfig returns the deployment defaults
func DefaultConfig() Config {
	return Config{
		Chat:     Sampling{Temperature: 0.3, MaxTokens: 110, TopP: 0.9},
		Analysis: Sampling{Temperature: 0.2, MaxTokens: 800, TopP: 0.9},
	}
}

// Builder constructs payloads. It is safe for concurrent use.
type Builder struct {
	config  Config
	schemes *SchemeTable
}

// NewBuilder creates a builder over the given scheme table
func NewBuilder(config Config, schemes *SchemeTable) *Builder {
	if schemes == nil {
		schemes = DefaultSchemes()
	}
	return &Builder{config: config, schemes: schemes}
}

// Build dispatches on the request kind
func (b *Builder) Build(req analysis.Request) (Payload, error) {
	switch r := req.(type) {
	case analysis.ChatRequest:
		return b.buildChat(r), nil
	case analysis.SymptomRequest:
		return b.buildSymptom(r), nil
	case analysis.XRayRequest:
		return b.buildXRay(r), nil
	case analysis.SchemeQueryRequest:
		return b.buildScheme(r), nil
	default:
		return Payload{}, fmt.Errorf("unsupported request type %T", req)
	}
}

const chatSystemPrompt = "You are AI Health Assistant. Respond in 2 to 3 short sentences. " +
	"Use plain text only, no bullets, no lists, no asterisks, no markdown. " +
	"If symptoms may be serious, include a brief safety note."

func (b *Builder) buildChat(r analysis.ChatRequest) Payload {
	return Payload{
		Kind:     analysis.KindChat,
		System:   chatSystemPrompt,
		User:     strings.TrimSpace(r.Message),
		Sampling: b.config.Chat,
	}
}

const symptomInstructions = `You are a medical AI assistant. Analyze the following symptoms and provide a comprehensive response in this exact JSON format:

{
  "analysis": "Brief analysis of the symptoms",
  "riskLevel": "low/moderate/high/critical",
  "recommendations": ["recommendation 1", "recommendation 2", "recommendation 3"],
  "medicalHelp": "When to seek medical attention",
  "confidence": 85
}

`

func (b *Builder) buildSymptom(r analysis.SymptomRequest) Payload {
	var prompt strings.Builder

	prompt.WriteString(symptomInstructions)
	prompt.WriteString(fmt.Sprintf("Symptoms: %s\n", strings.TrimSpace(r.Symptoms)))

	if !r.PatientInfo.IsEmpty() {
		prompt.WriteString("\n--- Patient Information ---\n")
		writePatientInfo(&prompt, r.PatientInfo)
	}

	prompt.WriteString("\nImportant: Only respond with valid JSON. Keep the analysis to two sentences, " +
		"give at most five short recommendations, keep medicalHelp to one sentence and use a " +
		"number from 0 to 100 for confidence. Be medically accurate but conservative. " +
		"Always emphasize consulting healthcare professionals.")

	return Payload{
		Kind:           analysis.KindSymptom,
		User:           prompt.String(),
		Sampling:       b.config.Analysis,
		ExpectedSchema: SymptomSchema,
	}
}

func writePatientInfo(prompt *strings.Builder, p *analysis.PatientInfo) {
	if p.Age != nil {
		prompt.WriteString(fmt.Sprintf("Age: %d\n", *p.Age))
	}
	if p.Gender != "" {
		prompt.WriteString(fmt.Sprintf("Gender: %s\n", p.Gender))
	}
	if len(p.MedicalHistory) > 0 {
		prompt.WriteString(fmt.Sprintf("Medical history: %s\n", strings.Join(p.MedicalHistory, ", ")))
	}
	if len(p.CurrentMedications) > 0 {
		prompt.WriteString(fmt.Sprintf("Current medications: %s\n", strings.Join(p.CurrentMedications, ", ")))
	}
	if len(p.Allergies) > 0 {
		prompt.WriteString(fmt.Sprintf("Allergies: %s\n", strings.Join(p.Allergies, ", ")))
	}
	if p.RecentTravel != nil {
		prompt.WriteString(fmt.Sprintf("Recent travel: %t\n", *p.RecentTravel))
	}
	if p.PainScale != nil {
		prompt.WriteString(fmt.Sprintf("Pain scale (0-10): %d\n", *p.PainScale))
	}
}

const xrayInstructions = `You are a radiology AI assistant. Review the attached X-ray image and respond in this exact JSON format:

{
  "confidence": 80,
  "diseases": [
    {"name": "Finding name", "probability": 40, "level": "normal/warning/critical", "description": "One sentence"}
  ],
  "recommendations": ["recommendation 1", "recommendation 2"],
  "overallAssessment": "One or two sentence summary",
  "urgencyLevel": "low/moderate/high/critical"
}

`

func (b *Builder) buildXRay(r analysis.XRayRequest) Payload {
	bodyPart, err := analysis.ParseBodyPart(string(r.BodyPart))
	if err != nil {
		bodyPart = analysis.BodyPartOther
	}

	var prompt strings.Builder
	prompt.WriteString(xrayInstructions)
	prompt.WriteString(fmt.Sprintf("Body part: %s\n", bodyPart))
	if indication := strings.TrimSpace(r.ClinicalIndication); indication != "" {
		prompt.WriteString(fmt.Sprintf("Clinical indication: %s\n", indication))
	}
	prompt.WriteString("\nImportant: Only respond with valid JSON. List at least one entry in diseases; " +
		"if nothing abnormal is visible, report \"No acute abnormality\" with level normal. " +
		"Probabilities and confidence are numbers from 0 to 100. This is not a diagnosis; " +
		"always recommend review by a qualified radiologist.")

	return Payload{
		Kind: analysis.KindXRay,
		User: prompt.String(),
		Image: &Image{
			MimeType: strings.ToLower(strings.TrimSpace(r.MimeType)),
			Base64:   r.ImageBase64,
		},
		Sampling:       b.config.Analysis,
		ExpectedSchema: XRaySchema,
	}
}

func (b *Builder) buildScheme(r analysis.SchemeQueryRequest) Payload {
	var prompt strings.Builder

	if r.IsGeneral() {
		prompt.WriteString("You are a helpful assistant for an Indian public health information portal. " +
			"Answer the user's question clearly in plain text, in at most five sentences.\n\n")
		if ctx := strings.TrimSpace(r.Context); ctx != "" {
			prompt.WriteString("--- Context ---\n")
			prompt.WriteString(ctx)
			prompt.WriteString("\n\n")
		}
	} else {
		prompt.WriteString("You are an expert on Indian government health schemes. " +
			"Answer the user's question about the scheme below using the context provided, " +
			"in plain text, in at most five sentences. If the answer is not in the context, " +
			"say so and suggest contacting the official helpline.\n\n")
		prompt.WriteString(b.SchemeContext(r.SchemeID, r.SchemeTitle))
		prompt.WriteString("\n")
	}

	prompt.WriteString(fmt.Sprintf("User Question: %s", strings.TrimSpace(r.Query)))

	return Payload{
		Kind:     analysis.KindScheme,
		User:     prompt.String(),
		Sampling: b.config.Analysis,
	}
}

// SchemeContext renders the static context block for a scheme id. Unknown ids
// fall back to the caller-supplied title.
func (b *Builder) SchemeContext(id, title string) string {
	var ctx strings.Builder
	ctx.WriteString("--- Scheme Context ---\n")

	scheme, ok := b.schemes.Lookup(id)
	if !ok {
		name := strings.TrimSpace(title)
		if name == "" {
			name = strings.TrimSpace(id)
		}
		ctx.WriteString(fmt.Sprintf("Scheme: %s\n", name))
		return ctx.String()
	}

	ctx.WriteString(fmt.Sprintf("Scheme: %s\n", scheme.Name))
	ctx.WriteString(fmt.Sprintf("Description: %s\n", scheme.Description))
	if len(scheme.Facts) > 0 {
		ctx.WriteString("Key facts:\n")
		for _, fact := range scheme.Facts {
			ctx.WriteString(fmt.Sprintf("- %s\n", fact))
		}
	}
	return ctx.String()
}
