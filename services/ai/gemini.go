// Package aisvc implements ai.Model on top of the Gemini API.
package aisvc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/ai"
)

var (
	ErrDisabled      = errors.New("no AI API key configured")
	ErrEmptyResponse = errors.New("the AI model returned an empty response")
	ErrUnknownFlow   = errors.New("unknown flow")
)

// Gemini asks the model for JSON constrained by the flow's response schema.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

var _ ai.Model = (*Gemini)(nil)

func NewGemini(ctx context.Context, conf *core.Config) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:  conf.AI.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if conf.AI.BaseURL != "" {
		cc.HTTPOptions.BaseURL = conf.AI.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return &Gemini{
		client:      client,
		model:       conf.AI.Model,
		temperature: float32(conf.AI.Temperature),
	}, nil
}

func (g *Gemini) Generate(ctx context.Context, flow ai.Flow, prompt string, out interface{}) error {
	schema, ok := schemas[flow]
	if !ok {
		return errors.Wrapf(ErrUnknownFlow, "%q", flow)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return errors.Wrap(err, "generating content")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return ErrEmptyResponse
	}
	return errors.Wrap(json.Unmarshal([]byte(text), out), "decoding model response")
}

// Disabled is the model used when no API key is configured: every flow fails, so the AI
// features report themselves unavailable while the rest of the app keeps working.
type Disabled struct{}

var _ ai.Model = Disabled{}

func (Disabled) Generate(context.Context, ai.Flow, string, interface{}) error { return ErrDisabled }

// New returns the Gemini model, or Disabled when no API key is configured.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (ai.Model, error) {
	if conf.AI.APIKey == "" {
		logger.Warn("AI API key missing: AI features disabled")
		return Disabled{}, nil
	}
	return NewGemini(ctx, conf)
}
