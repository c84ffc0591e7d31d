// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore is the Store implementation backed by Google Cloud Storage.
// Every uploaded lab PDF lives in BucketName under its SHA-256 path.
// Object ACLs change only through SetAcl; the lab pipeline does not call
// it, so objects keep the bucket's default access.
type GCSStore struct {
	client     *storage.Client
	ProjectId  string
	BucketName string
}

// NewGCSStore dials GCS using a service-account key file. saKeyPath must
// exist; GCS credentials are never read from ambient environment
// defaults so a misconfigured deployment fails fast instead of silently
// picking up the wrong project.
func NewGCSStore(ctx context.Context, projectId, bucketName, saKeyPath string) (*GCSStore, error) {
	if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(saKeyPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &GCSStore{client: client, ProjectId: projectId, BucketName: bucketName}, nil
}

func (s *GCSStore) GetUploadURL(ctx context.Context, objectPath string, contentType string) (UploadTarget, error) {
	opts := &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		Expires:     time.Now().Add(UploadURLTTL),
		ContentType: contentType,
	}
	url, err := s.client.Bucket(s.BucketName).SignedURL(objectPath, opts)
	if err != nil {
		return UploadTarget{}, fmt.Errorf("sign upload url for %s: %w", objectPath, err)
	}
	return UploadTarget{URL: url, Path: objectPath}, nil
}

func (s *GCSStore) GetBuffer(ctx context.Context, path string) ([]byte, error) {
	reader, err := s.client.Bucket(s.BucketName).Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open reader for %s: %w", path, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", path, err)
	}
	return data, nil
}

func (s *GCSStore) SetAcl(ctx context.Context, path string, acl ACL) error {
	obj := s.client.Bucket(s.BucketName).Object(path)
	switch acl.Visibility {
	case VisibilityPrivate:
		if err := obj.ACL().Delete(ctx, storage.AllUsers); err != nil && err != storage.ErrObjectNotExist {
			return fmt.Errorf("revoke public acl on %s: %w", path, err)
		}
	case VisibilityOwner:
		if err := obj.ACL().Set(ctx, storage.ACLEntity("user-"+acl.Owner), storage.RoleReader); err != nil {
			return fmt.Errorf("set owner acl on %s: %w", path, err)
		}
	}
	return nil
}

func (s *GCSStore) Download(ctx context.Context, path string, w io.Writer) error {
	reader, err := s.client.Bucket(s.BucketName).Object(path).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open reader for %s: %w", path, err)
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		return fmt.Errorf("stream object %s: %w", path, err)
	}
	return nil
}

// Close releases the underlying GCS client connection pool.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
