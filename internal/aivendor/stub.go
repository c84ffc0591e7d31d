// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aivendor

import (
	"context"
	"fmt"
)

// StubVendor is a deterministic, network-free Vendor used by tests: it
// returns scripted outputs instead of calling a live service (§9 DESIGN
// NOTES: "Testing uses a deterministic stub").
type StubVendor struct {
	// ChatResponse is returned verbatim from Chat, unless ChatErr is set.
	ChatResponse string
	ChatErr      error

	// ExtractionResult is returned verbatim from ExtractStructured,
	// unless ExtractErr is set.
	ExtractionResult ExtractionResult
	ExtractErr       error

	// Calls records every Chat/ExtractStructured invocation for
	// assertions in tests that care about call count or arguments.
	Calls []string
}

func (s *StubVendor) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	s.Calls = append(s.Calls, fmt.Sprintf("chat(%d messages)", len(messages)))
	if s.ChatErr != nil {
		return "", s.ChatErr
	}
	return s.ChatResponse, nil
}

func (s *StubVendor) ExtractStructured(ctx context.Context, fileBytes []byte) (ExtractionResult, error) {
	s.Calls = append(s.Calls, fmt.Sprintf("extract(%d bytes)", len(fileBytes)))
	if s.ExtractErr != nil {
		return ExtractionResult{}, s.ExtractErr
	}
	return s.ExtractionResult, nil
}
