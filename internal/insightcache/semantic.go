// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package insightcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/flomentum/vitalscore/pkg/logging"
)

// insightPatternClass is the Weaviate class storing a near-text index of
// previously claimed insight patterns, keyed loosely by their title/body
// text rather than the exact pattern_signature hash. It exists alongside
// the signature's exact-match dedup (internal/correlation) to catch
// phrasing the hash misses -- two cards about the same underlying
// pattern worded slightly differently still look like near-duplicates.
const insightPatternClass = "InsightPattern"

// SemanticIndex wraps a Weaviate client for near-duplicate search over
// claimed insight patterns. It is optional: when config.WeaviateURL is
// unset, callers skip constructing one and fall back to the
// pattern_signature exact match alone.
type SemanticIndex struct {
	client *weaviate.Client
	logger *logging.Logger
}

// Open connects to a Weaviate instance at rawURL and ensures the
// InsightPattern class exists, creating it if this is a fresh instance.
func Open(ctx context.Context, rawURL string, logger *logging.Logger) (*SemanticIndex, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", rawURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{Scheme: parsed.Scheme, Host: parsed.Host})
	if err != nil {
		return nil, fmt.Errorf("connect to weaviate at %s: %w", rawURL, err)
	}

	exists, err := client.Schema().ClassExistenceChecker().WithClassName(insightPatternClass).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("check weaviate schema: %w", err)
	}
	if !exists {
		class := &models.Class{
			Class:      insightPatternClass,
			Vectorizer: "text2vec-contextionary",
			Properties: []*models.Property{
				{Name: "user", DataType: []string{"text"}},
				{Name: "patternSignature", DataType: []string{"text"}},
				{Name: "text", DataType: []string{"text"}},
			},
		}
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return nil, fmt.Errorf("create weaviate class %s: %w", insightPatternClass, err)
		}
	}
	return &SemanticIndex{client: client, logger: logger}, nil
}

// Index records a claimed pattern's text so future near-text searches can
// surface it as a candidate duplicate.
func (s *SemanticIndex) Index(ctx context.Context, user, patternSignature, text string) error {
	props := map[string]any{
		"user":             user,
		"patternSignature": patternSignature,
		"text":             text,
	}
	_, err := s.client.Data().Creator().
		WithClassName(insightPatternClass).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("index insight pattern: %w", err)
	}
	return nil
}

// nearTextHit is the shape of one GraphQL Get.InsightPattern result.
type nearTextHit struct {
	PatternSignature string `json:"patternSignature"`
}

// NearDuplicate returns up to limit pattern_signatures previously claimed
// for user whose recorded text is semantically close to text, so a
// correlation pass can suppress a near-duplicate insight even when its
// computed pattern_signature differs from anything already on file.
func (s *SemanticIndex) NearDuplicate(ctx context.Context, user, text string, limit int) ([]string, error) {
	nearText := s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{text})
	whereFilter := filters.Where().
		WithPath([]string{"user"}).
		WithOperator(filters.Equal).
		WithValueString(user)

	resp, err := s.client.GraphQL().Get().
		WithClassName(insightPatternClass).
		WithFields(graphql.Field{Name: "patternSignature"}).
		WithNearText(nearText).
		WithWhere(whereFilter).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("near-text search insight patterns: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql error: %s", resp.Errors[0].Message)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("re-marshal weaviate response: %w", err)
	}
	var parsed struct {
		Get struct {
			InsightPattern []nearTextHit `json:"InsightPattern"`
		} `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal weaviate response: %w", err)
	}

	signatures := make([]string, 0, len(parsed.Get.InsightPattern))
	for _, hit := range parsed.Get.InsightPattern {
		signatures = append(signatures, hit.PatternSignature)
	}
	return signatures, nil
}
