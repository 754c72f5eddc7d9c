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

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/analysis"
	"github.com/your-org/ai-health-assistant/internal/pipeline"
	"github.com/your-org/ai-health-assistant/internal/resilience"
)

// ChatBody is the payload of POST /api/chat
type ChatBody struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// SymptomBody is the payload of POST /api/analyze-symptoms
type SymptomBody struct {
	Symptoms       string                `json:"symptoms"`
	UserID         string                `json:"userId"`
	AdditionalInfo *analysis.PatientInfo `json:"additionalInfo"`
}

// XRayBody is the payload of POST /api/analyze-xray
type XRayBody struct {
	ImageData          string `json:"imageData"`
	ImageType          string `json:"imageType"`
	UserID             string `json:"userId"`
	BodyPart           string `json:"bodyPart"`
	ClinicalIndication string `json:"clinicalIndication"`
}

// SchemeBody is the payload of POST /api/scheme-query
type SchemeBody struct {
	Scheme      string `json:"scheme"`
	SchemeTitle string `json:"schemeTitle"`
	Query       string `json:"query"`
	UserID      string `json:"userId"`
}

// ChatbotBody is the payload of POST /api/chatbot-query
type ChatbotBody struct {
	Query   string `json:"query"`
	Context string `json:"context"`
	UserID  string `json:"userId"`
}

func (s *Server) handleChat(c *gin.Context) {
	var body ChatBody
	if !s.bind(c, &body) {
		return
	}
	s.run(c, body.UserID, analysis.ChatRequest{Message: body.Message})
}

func (s *Server) handleSymptoms(c *gin.Context) {
	var body SymptomBody
	if !s.bind(c, &body) {
		return
	}
	s.run(c, body.UserID, analysis.SymptomRequest{
		Symptoms:    body.Symptoms,
		PatientInfo: body.AdditionalInfo,
	})
}

func (s *Server) handleXRay(c *gin.Context) {
	var body XRayBody
	if !s.bind(c, &body) {
		return
	}

	data, prefixMime := analysis.SplitDataURL(body.ImageData)
	mimeType := strings.TrimSpace(body.ImageType)
	if mimeType == "" {
		mimeType = prefixMime
	}

	s.run(c, body.UserID, analysis.XRayRequest{
		ImageBase64:        data,
		MimeType:           mimeType,
		BodyPart:           analysis.BodyPart(body.BodyPart),
		ClinicalIndication: body.ClinicalIndication,
	})
}

func (s *Server) handleSchemeQuery(c *gin.Context) {
	var body SchemeBody
	if !s.bind(c, &body) {
		return
	}
	if strings.TrimSpace(body.Scheme) == "" && strings.TrimSpace(body.SchemeTitle) == "" {
		s.fail(c, resilience.NewBadRequestError("scheme is required", nil))
		return
	}
	s.run(c, body.UserID, analysis.SchemeQueryRequest{
		SchemeID:    body.Scheme,
		SchemeTitle: body.SchemeTitle,
		Query:       body.Query,
	})
}

func (s *Server) handleChatbotQuery(c *gin.Context) {
	var body ChatbotBody
	if !s.bind(c, &body) {
		return
	}
	s.run(c, body.UserID, analysis.SchemeQueryRequest{
		Query:   body.Query,
		Context: body.Context,
	})
}

func (s *Server) bind(c *gin.Context, body interface{}) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		s.fail(c, resilience.NewBadRequestError("Invalid request format", err))
		return false
	}
	return true
}

// run executes the pipeline and writes the flattened analysis
func (s *Server) run(c *gin.Context, userID string, req analysis.Request) {
	out, err := s.pipeline.Run(c.Request.Context(), pipeline.Input{
		Request:   req,
		UserID:    strings.TrimSpace(userID),
		RequestID: requestID(c),
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	if out.Source == analysis.SourceFallback {
		s.logger.Debug("Responding with fallback",
			zap.String("request_id", requestID(c)),
			zap.String("reason", out.FailureReason))
	}

	c.Header(HeaderAnalysisSource, string(out.Source))
	c.JSON(http.StatusOK, out.Analysis)
}

func (s *Server) fail(c *gin.Context, err error) {
	s.errorHandler.WriteErrorResponse(c.Writer, err, requestID(c))
	c.Abort()
}
