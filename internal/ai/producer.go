// Package ai implements the AI interviewer producer on top of the Gemini API.
// The room sequencer only sees the room.Producer interface; everything here
// is replaceable by any service that turns candidate audio into a stream of
// response parts.
package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/peercode/interview-service/internal/model"
)

const systemPrompt = "You are a professional technical interviewer. " +
	"Respond to the candidate's answer with a short follow-up question or " +
	"feedback, keeping the interview moving. Stay concise and spoken-style."

const audioMIMEType = "audio/webm"

// GeminiProducer streams interview turns from the Gemini API.
type GeminiProducer struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGeminiProducer creates the producer. apiKey is required.
func NewGeminiProducer(ctx context.Context, apiKey, modelName string, log *zap.Logger) (*GeminiProducer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ai: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("ai: create client: %w", err)
	}
	return &GeminiProducer{client: client, model: modelName, log: log}, nil
}

// Generate sends the buffered candidate audio and streams response parts.
// On a model error the stream is closed without a terminal part; the
// sequencer converts that into a producer failure, so this never wedges a
// session. The final successful part carries IsLast.
func (p *GeminiProducer) Generate(ctx context.Context, turnID uint64, chunks [][]byte) (<-chan model.TurnPart, error) {
	parts := make([]*genai.Part, 0, len(chunks)+1)
	for _, c := range chunks {
		parts = append(parts, genai.NewPartFromBytes(c, audioMIMEType))
	}
	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText("(the candidate stayed silent)"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	out := make(chan model.TurnPart, 8)
	go func() {
		defer close(out)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				p.log.Warn("gemini stream failed",
					zap.Uint64("turn", turnID), zap.Error(err))
				return
			}
			if txt := resp.Text(); txt != "" {
				out <- model.TurnPart{Text: txt}
			}
		}
		out <- model.TurnPart{IsLast: true}
	}()
	return out, nil
}
