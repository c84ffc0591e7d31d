// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aivendor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// extractionSchema is the JSON shape the extractor prompt asks the model
// to return. Only the shape is validated by the caller (§4.8, "Output is
// opaque to the core"); field values are never interpreted here.
type extractionSchema struct {
	Biomarkers []struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	} `json:"biomarkers"`
	TestDate string `json:"test_date"`
	LabName  string `json:"lab_name"`
}

// OpenAIVendor is the Vendor implementation backed by OpenAI's chat
// completion API, used for both conversational chat and structured
// document extraction (via a JSON response-format request).
type OpenAIVendor struct {
	client *openai.Client
	model  string
}

// NewOpenAIVendor constructs a vendor client. apiKey is expected to come
// from a memguard-sealed enclave (internal/config.VendorAPIKey), opened
// just long enough to build the underlying HTTP client.
func NewOpenAIVendor(apiKey, model string) *OpenAIVendor {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIVendor{client: openai.NewClient(apiKey), model: model}
}

func (v *OpenAIVendor) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{Model: v.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := v.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (v *OpenAIVendor) ExtractStructured(ctx context.Context, fileBytes []byte) (ExtractionResult, error) {
	prompt := "Extract every lab biomarker from this PDF (base64-encoded below) as JSON " +
		`{"biomarkers":[{"name":"","value":0,"unit":""}],"test_date":"YYYY-MM-DD","lab_name":""}.` +
		"\n\n" + base64.StdEncoding.EncodeToString(fileBytes)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          v.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You extract structured lab results from documents."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("openai extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ExtractionResult{}, fmt.Errorf("openai returned no choices")
	}

	var parsed extractionSchema
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return ExtractionResult{}, fmt.Errorf("parse extraction response: %w", err)
	}

	result := ExtractionResult{TestDate: parsed.TestDate, LabName: parsed.LabName}
	for _, b := range parsed.Biomarkers {
		result.Biomarkers = append(result.Biomarkers, ExtractedBiomarker{Name: b.Name, Value: b.Value, Unit: b.Unit})
	}
	return result, nil
}
