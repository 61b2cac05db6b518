// Package middleware composes the ingress checks every upload passes
// through before it is enqueued (spec §4.1, §4.4): structured-logging,
// rate-limiting, and duplicate-upload detection, plus the supplemented
// upload-velocity guard from SPEC_FULL.md §7. Modeled on the teacher's
// straight-line request handling — no generic http.Handler chain exists in
// this domain, so Check is a plain function pipeline instead of a
// net/http-style wrapper stack.
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"imageverify/api/internal/apperr"
	"imageverify/api/internal/logging"
	"imageverify/api/internal/phash"
	"imageverify/api/internal/ratelimit"
	"imageverify/api/internal/store"
)

const phashDupDistance = 10

type Chain struct {
	Log             *zap.Logger
	RateLimiter     *ratelimit.Limiter
	Velocity        *ratelimit.Limiter
	Analyses        *store.AnalysisRepo
	DuplicateWindow time.Duration
}

// Check runs every ingress guard in order — rate limit, then exact-hash
// duplicate, then near-duplicate by phash, then the upload-velocity guard
// (SPEC_FULL.md §7: velocity is layered after the duplicate checks, since a
// legitimate re-upload should never itself count against the velocity
// ceiling) — and returns the first failure. On success it returns the
// perceptual hash computed for the image, so the caller doesn't need to
// recompute it when persisting the eventual result.
func (c *Chain) Check(ctx context.Context, userID int64, imageSHA256 string, image []byte) (string, error) {
	log := c.Log.With(zap.String("user", logging.AnonymizeUserID(userID)))

	allowed, wait, err := c.RateLimiter.Allow(ctx, fmt.Sprintf("%d", userID))
	if err != nil {
		log.Warn("rate limiter unavailable, failing open", zap.Error(err))
	} else if !allowed {
		return "", apperr.NewRateLimitedError(wait)
	}

	if rec, err := c.Analyses.FindRecentByHash(ctx, userID, imageSHA256, c.DuplicateWindow); err == nil {
		return "", apperr.NewDuplicateUploadError(rec.AnalysisID)
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Warn("duplicate-by-hash lookup failed, continuing", zap.Error(err))
	}

	ph, err := phash.Compute(image)
	if err != nil {
		// Perceptual hashing is best-effort: a format goimagehash can't
		// decode still passes through to the exact-hash dedup above.
		log.Debug("phash compute failed, skipping near-dup check", zap.Error(err))
		return "", c.checkUploadVelocity(ctx, userID)
	}

	recent, err := c.Analyses.FindRecentByPHash(ctx, userID, c.DuplicateWindow)
	if err != nil {
		log.Warn("duplicate-by-phash lookup failed, continuing", zap.Error(err))
		return ph, c.checkUploadVelocity(ctx, userID)
	}
	for _, rec := range recent {
		d, err := phash.Distance(ph, rec.PHash)
		if err != nil {
			continue
		}
		if d <= phashDupDistance {
			return ph, apperr.NewDuplicateUploadError(rec.AnalysisID)
		}
	}
	return ph, c.checkUploadVelocity(ctx, userID)
}

// checkUploadVelocity flags accounts uploading many non-duplicate images in
// a short window, independent of tier or quota (SPEC_FULL.md §7, grounded in
// original_source's adversarial-protection middleware: max_similar=10,
// window_hours=1) — a backstop against flooding the queue with legitimate,
// distinct uploads faster than the primary rate limiter alone would catch.
func (c *Chain) checkUploadVelocity(ctx context.Context, userID int64) error {
	allowed, _, err := c.Velocity.Allow(ctx, fmt.Sprintf("%d", userID))
	if err != nil {
		c.Log.Warn("upload velocity guard unavailable, failing open", zap.Error(err))
		return nil
	}
	if !allowed {
		return apperr.ErrUploadFlagged
	}
	return nil
}
