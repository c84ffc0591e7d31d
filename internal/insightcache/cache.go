// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package insightcache implements §4.8's fingerprint-keyed cache of
// AI-generated insight payloads. The key embeds the measurement's
// canonical value (model.Measurement.Fingerprint), so a changed value
// never serves a stale-but-still-present entry under a mismatched key --
// this is the decision recorded in DESIGN.md for the §9 Open Question
// about stale fallback and measurement drift.
package insightcache

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/flomentum/vitalscore/internal/badgerkv"
	"github.com/flomentum/vitalscore/internal/metrics"
	"github.com/flomentum/vitalscore/internal/model"
)

func entryKey(user, biomarkerId, fingerprint string) string {
	return "insightcache:" + user + ":" + biomarkerId + ":" + fingerprint
}

type entry struct {
	Payload     model.GeneratedInsightPayload
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// Cache is the badger-backed insight cache. TTL is applied at read time
// rather than relying on badger's own expiry so an expired entry can
// still be served as a labeled stale fallback (§4.8) when live
// generation fails.
type Cache struct {
	kv  *badgerkv.DB
	ttl time.Duration
}

// New constructs a Cache with the given default TTL
// (config.Config.InsightsCacheTTL()).
func New(kv *badgerkv.DB, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl}
}

// Put stores payload under (user, biomarkerId, fingerprint), stamped
// generatedAt and expiring after the cache's configured TTL.
func (c *Cache) Put(ctx context.Context, user, biomarkerId, fingerprint string, payload model.GeneratedInsightPayload, generatedAt time.Time) error {
	e := entry{Payload: payload, GeneratedAt: generatedAt, ExpiresAt: generatedAt.Add(c.ttl)}
	return c.kv.WithTxn(ctx, func(txn *badger.Txn) error {
		return badgerkv.PutJSON(txn, entryKey(user, biomarkerId, fingerprint), e)
	})
}

// GetFresh returns the cached payload only if it is present and not yet
// expired as of now.
func (c *Cache) GetFresh(ctx context.Context, user, biomarkerId, fingerprint string, now time.Time) (model.CacheEnvelope, bool, error) {
	e, found, err := c.get(ctx, user, biomarkerId, fingerprint)
	if err != nil || !found || now.After(e.ExpiresAt) {
		if err == nil {
			metrics.InsightCacheHits.WithLabelValues("miss").Inc()
		}
		return model.CacheEnvelope{}, false, err
	}
	metrics.InsightCacheHits.WithLabelValues("fresh").Inc()
	return model.CacheEnvelope{Payload: e.Payload, GeneratedAt: e.GeneratedAt, ExpiresAt: e.ExpiresAt, CacheStatus: model.CacheFresh}, true, nil
}

// GetStaleFallback returns the cached payload regardless of expiry,
// labeled model.CacheStale, for use only when a live generation attempt
// has already failed (§7: "Cached/stale fallback is served when live
// LLM calls fail"). Callers must never serve this result in place of a
// successful live call.
func (c *Cache) GetStaleFallback(ctx context.Context, user, biomarkerId, fingerprint string) (model.CacheEnvelope, bool, error) {
	e, found, err := c.get(ctx, user, biomarkerId, fingerprint)
	if err != nil || !found {
		return model.CacheEnvelope{}, false, err
	}
	metrics.InsightCacheHits.WithLabelValues("stale").Inc()
	return model.CacheEnvelope{Payload: e.Payload, GeneratedAt: e.GeneratedAt, ExpiresAt: e.ExpiresAt, CacheStatus: model.CacheStale}, true, nil
}

func (c *Cache) get(ctx context.Context, user, biomarkerId, fingerprint string) (entry, bool, error) {
	var e entry
	var found bool
	err := c.kv.WithReadTxn(ctx, func(txn *badger.Txn) error {
		err := badgerkv.GetJSON(txn, entryKey(user, biomarkerId, fingerprint), &e)
		if err == badgerkv.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return e, found, err
}
