// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package objectstore is the narrow interface the lab upload pipeline
// uses to stage and retrieve uploaded PDFs, and the GCS-backed
// implementation behind it.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Visibility controls who besides the owning user can read an object.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityOwner   Visibility = "owner"
)

// ACL is the access policy set on a stored object.
type ACL struct {
	Owner      string
	Visibility Visibility
}

// UploadTarget is a short-lived destination a client can PUT a file to
// directly, without routing the bytes through this process.
type UploadTarget struct {
	URL  string
	Path string
}

// Store is the external collaborator the lab upload pipeline depends on.
// Every method is a suspension point and takes a context so a cancelled
// request doesn't leave an orphaned network call behind.
type Store interface {
	// GetUploadURL mints a time-limited signed URL a client can upload a
	// lab PDF to directly, plus the object path it will land at.
	GetUploadURL(ctx context.Context, objectPath string, contentType string) (UploadTarget, error)
	// GetBuffer reads an entire object into memory with no size limit of
	// its own; lab PDFs are capped at 10 MiB when accepted.
	GetBuffer(ctx context.Context, path string) ([]byte, error)
	// SetAcl applies an access policy to an already-uploaded object.
	SetAcl(ctx context.Context, path string, acl ACL) error
	// Download streams an object's contents to w without buffering the
	// whole object in memory.
	Download(ctx context.Context, path string, w io.Writer) error
}

// UploadURLTTL is how long a signed upload URL remains valid.
const UploadURLTTL = 15 * time.Minute
