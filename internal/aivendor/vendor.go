// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package aivendor models the external AI vendor(s) behind the lab
// upload pipeline's Extractor and the insight generator's Chat call as a
// single narrow interface, selected by configuration (§9 DESIGN NOTES:
// "Dynamic dispatch on external AIs"). Production wiring points at
// OpenAI; tests use a deterministic stub that never touches the network.
package aivendor

import "context"

// ChatMessage is one turn of a conversation sent to Chat.
type ChatMessage struct {
	Role    string
	Content string
}

// ExtractedBiomarker is one raw row an Extractor reads off a lab PDF,
// before it has gone anywhere near the normalisation engine.
type ExtractedBiomarker struct {
	Name  string
	Value float64
	Unit  string
}

// ExtractionResult is the whole-document output of an extraction call.
type ExtractionResult struct {
	Biomarkers []ExtractedBiomarker
	TestDate   string // RFC3339 date, as the vendor reported it, unparsed
	LabName    string
}

// Vendor is the external collaborator §6 calls "LLM vendor(s)": chat for
// the insight generator, structured extraction for the lab upload
// pipeline. Every method is a suspension point and takes a context so a
// cancelled request (or the lab pipeline's per-operation timeout)
// aborts the in-flight call instead of wedging the job.
type Vendor interface {
	// Chat sends a conversation and returns the assistant's full
	// response. Used by internal/insightgen to produce a structured
	// insight card body.
	Chat(ctx context.Context, messages []ChatMessage) (string, error)

	// ExtractStructured reads a lab PDF's bytes and returns the raw
	// biomarkers, test date, and lab name it found. A vendor failure
	// (timeout, malformed document, rate limit) is the only thing that
	// fails a whole lab upload job outright -- per-biomarker problems
	// are the normalisation engine's concern, not the extractor's.
	ExtractStructured(ctx context.Context, fileBytes []byte) (ExtractionResult, error)
}
