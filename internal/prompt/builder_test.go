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

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/ai-health-assistant/internal/analysis"
)

func newTestBuilder() *Builder {
	return NewBuilder(DefaultConfig(), nil)
}

func TestBuild_Chat(t *testing.T) {
	payload, err := newTestBuilder().Build(analysis.ChatRequest{Message: "  I feel dizzy  "})
	require.NoError(t, err)

	assert.Equal(t, analysis.KindChat, payload.Kind)
	assert.Contains(t, payload.System, "2 to 3 short sentences")
	assert.Equal(t, "I feel dizzy", payload.User)
	assert.Empty(t, payload.ExpectedSchema)
	assert.False(t, payload.Multimodal())
	assert.Equal(t, 110, payload.Sampling.MaxTokens)
	assert.InDelta(t, 0.3, payload.Sampling.Temperature, 0.0001)
}

func TestBuild_Symptom(t *testing.T) {
	age := 34
	payload, err := newTestBuilder().Build(analysis.SymptomRequest{
		Symptoms: "mild headache for 2 hours",
		PatientInfo: &analysis.PatientInfo{
			Age:       &age,
			Allergies: []string{"penicillin"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, SymptomSchema, payload.ExpectedSchema)
	assert.Contains(t, payload.User, "Symptoms: mild headache for 2 hours")
	assert.Contains(t, payload.User, `"riskLevel"`)
	assert.Contains(t, payload.User, "Only respond with valid JSON")
	assert.Contains(t, payload.User, "Age: 34")
	assert.Contains(t, payload.User, "Allergies: penicillin")
}

func TestBuild_SymptomWithoutPatientInfo(t *testing.T) {
	payload, err := newTestBuilder().Build(analysis.SymptomRequest{Symptoms: "cough"})
	require.NoError(t, err)
	assert.NotContains(t, payload.User, "Patient Information")
}

func TestBuild_XRay(t *testing.T) {
	payload, err := newTestBuilder().Build(analysis.XRayRequest{
		ImageBase64:        "aGVsbG8=",
		MimeType:           "IMAGE/PNG",
		BodyPart:           analysis.BodyPartChest,
		ClinicalIndication: "persistent cough",
	})
	require.NoError(t, err)

	require.True(t, payload.Multimodal())
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", payload.Image.DataURL())
	assert.Equal(t, XRaySchema, payload.ExpectedSchema)
	assert.Contains(t, payload.User, "Body part: chest")
	assert.Contains(t, payload.User, "Clinical indication: persistent cough")
}

func TestBuild_SchemeKnown(t *testing.T) {
	b := newTestBuilder()
	payload, err := b.Build(analysis.SchemeQueryRequest{
		SchemeID: "ayushman-bharat",
		Query:    "What does it cover?",
	})
	require.NoError(t, err)

	assert.Empty(t, payload.ExpectedSchema)
	assert.Contains(t, payload.User, "Ayushman Bharat")
	assert.Contains(t, payload.User, "Key facts:")
	assert.Contains(t, payload.User, "User Question: What does it cover?")
}

func TestBuild_SchemeUnknownFallsBackToTitle(t *testing.T) {
	payload, err := newTestBuilder().Build(analysis.SchemeQueryRequest{
		SchemeID:    "state-scheme-42",
		SchemeTitle: "Chief Minister Health Insurance",
		Query:       "How do I apply?",
	})
	require.NoError(t, err)

	assert.Contains(t, payload.User, "Scheme: Chief Minister Health Insurance")
	assert.NotContains(t, payload.User, "Key facts:")
}

func TestBuild_GeneralChatbotQuery(t *testing.T) {
	payload, err := newTestBuilder().Build(analysis.SchemeQueryRequest{
		Query:   "Where is the nearest clinic?",
		Context: "User is on the hospitals page",
	})
	require.NoError(t, err)

	assert.Contains(t, payload.User, "--- Context ---\nUser is on the hospitals page")
	assert.NotContains(t, payload.User, "Scheme Context")
}

func TestSchemeContext_PureFunctionOfID(t *testing.T) {
	b := newTestBuilder()
	first := b.SchemeContext("jan-aushadhi", "")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, b.SchemeContext("jan-aushadhi", ""))
	}
	assert.Equal(t, first, NewBuilder(DefaultConfig(), DefaultSchemes()).SchemeContext(" JAN-AUSHADHI ", "ignored"))
}

func TestParseSchemes(t *testing.T) {
	table, err := ParseSchemes([]byte(`
schemes:
  - id: B
    name: Second
  - id: a
    name: First
    facts: [one]
`))
	require.NoError(t, err)

	all := table.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	_, err = ParseSchemes([]byte("schemes:\n  - id: x\n"))
	assert.Error(t, err)

	_, err = ParseSchemes([]byte("schemes:\n  - id: x\n    name: X\n  - id: X\n    name: Y\n"))
	assert.Error(t, err)
}

func TestDefaultSchemes(t *testing.T) {
	table := DefaultSchemes()
	assert.NotEmpty(t, table.All())
	_, ok := table.Lookup("ayushman-bharat")
	assert.True(t, ok)
}
