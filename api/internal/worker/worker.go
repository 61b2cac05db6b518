// Package worker runs the analysis pipeline (spec §4.4 "Analysis Worker"):
// pull a job, download its blob, call the analysis API and the Gemini
// watermark probe, fuse the result, persist it, notify the chat, and
// best-effort delete the blob. Each job runs start to finish on one of the
// pool's goroutines under a single context — the original Python worker
// spawned a fresh event loop per pipeline stage and corrupted its DB
// connection pool doing so; this worker holds one context for the whole
// job instead (SPEC_FULL.md §6.4).
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"imageverify/api/internal/analysisapi"
	"imageverify/api/internal/apperr"
	"imageverify/api/internal/blobstore"
	"imageverify/api/internal/fusion"
	"imageverify/api/internal/gemini"
	"imageverify/api/internal/idgen"
	"imageverify/api/internal/logging"
	"imageverify/api/internal/model"
	"imageverify/api/internal/notify"
	"imageverify/api/internal/phash"
	"imageverify/api/internal/progress"
	"imageverify/api/internal/queue"
	"imageverify/api/internal/store"
)

type Pool struct {
	Log          *zap.Logger
	Queue        *queue.Queue
	Blobs        *blobstore.Store
	Analysis     *analysisapi.Client
	Watermark    *gemini.Probe
	Analyses     *store.AnalysisRepo
	Users        *store.UserRepo
	Progress     *progress.Notifier
	Renderer     *notify.Renderer
	JobTimeout   time.Duration
	WorkerCount  int
}

// Run starts WorkerCount goroutines that pop and process jobs until ctx is
// canceled.
func (p *Pool) Run(ctx context.Context) {
	if n, err := p.Queue.Recover(ctx); err != nil {
		p.Log.Error("queue recovery failed", zap.Error(err))
	} else if n > 0 {
		p.Log.Info("recovered inflight jobs", zap.Int("count", n))
	}

	go p.reapRetries(ctx)

	for i := 0; i < p.WorkerCount; i++ {
		go p.loop(ctx, i)
	}
	<-ctx.Done()
}

// reapRetries promotes backed-off retry jobs back onto their priority list
// once their delay has elapsed (spec §4.3 backoff, SPEC_FULL.md §6.3).
func (p *Pool) reapRetries(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.Queue.PromoteDueRetries(ctx); err != nil {
				p.Log.Error("promote due retries failed", zap.Error(err))
			} else if n > 0 {
				p.Log.Info("promoted due retries", zap.Int("count", n))
			}
		}
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.Log.With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.Queue.Pop(ctx, 5*time.Second)
		if err != nil {
			continue // redis.Nil (no job within the poll interval) or a transient error; retry
		}

		jobCtx, cancel := context.WithTimeout(ctx, p.JobTimeout)
		p.process(jobCtx, log, job)
		cancel()
	}
}

func (p *Pool) process(ctx context.Context, log *zap.Logger, job model.Job) {
	log = log.With(zap.String("job", job.JobID), zap.String("user", logging.AnonymizeUserID(job.UserID)))

	if err := p.Progress.Advance(ctx, job.ChatID, job.ProgressMsgID, progress.StageDownloading); err != nil {
		log.Warn("progress advance failed", zap.Error(err))
	}

	image, err := p.Blobs.Get(ctx, job.BlobKey)
	if err != nil {
		p.fail(ctx, log, job, fmt.Errorf("%w: %v", apperr.ErrStoreTransient, err))
		return
	}

	if err := p.Progress.Advance(ctx, job.ChatID, job.ProgressMsgID, progress.StageAnalyzing); err != nil {
		log.Warn("progress advance failed", zap.Error(err))
	}

	signals, processingTimeMs, err := p.Analysis.Analyze(ctx, image, job.Scenario, job.PreserveEXIF)
	if err != nil {
		p.fail(ctx, log, job, err)
		return
	}

	if wm, err := p.Watermark.Analyze(ctx, image); err != nil {
		log.Warn("watermark probe failed, continuing without it", zap.Error(err))
	} else if wm.WatermarkGenerator != "" && wm.WatermarkConfidence >= 0.5 {
		signals.VisualWatermark = &model.VisualWatermark{
			Generator:  wm.WatermarkGenerator,
			Text:       wm.WatermarkText,
			Location:   wm.WatermarkLocation,
			Confidence: wm.WatermarkConfidence,
		}
	} else if wm.IsScreenshot && wm.ScreenshotConfidence >= 0.5 {
		signals.ScreenshotDetected = true
	}

	if err := p.Progress.Advance(ctx, job.ChatID, job.ProgressMsgID, progress.StageFusing); err != nil {
		log.Warn("progress advance failed", zap.Error(err))
	}

	result := fusion.Fuse(signals)

	rawSignals, err := marshalSignals(signals)
	if err != nil {
		p.fail(ctx, log, job, fmt.Errorf("%w: %v", apperr.ErrPersistence, err))
		return
	}

	imageSHA := idgen.ImageSHA256(image)
	analysisID := idgen.AnalysisID(time.Now(), image)
	imagePHash, err := phash.Compute(image)
	if err != nil {
		log.Debug("phash compute failed for persisted record", zap.Error(err))
	}
	rec := model.AnalysisRecord{
		AnalysisID:       analysisID,
		UserID:           job.UserID,
		Scenario:         job.Scenario,
		Verdict:          result.Verdict,
		Confidence:       result.Confidence,
		Reason:           result.Reason,
		ProcessingTimeMs: processingTimeMs,
		ResultBlob:       rawSignals,
		ImageSHA256:      imageSHA,
		PHash:            imagePHash,
		CreatedAt:        time.Now(),
	}
	if err := p.Analyses.Create(ctx, rec); err != nil {
		p.fail(ctx, log, job, fmt.Errorf("%w: %v", apperr.ErrPersistence, err))
		return
	}

	if err := p.Renderer.Render(ctx, job.ChatID, job.ProgressMsgID, job.Scenario, result, signals, analysisID); err != nil {
		log.Error("render failed", zap.Error(err))
	}

	p.Progress.Forget(job.ProgressMsgID)
	if err := p.Queue.Ack(ctx, job.JobID); err != nil {
		log.Error("ack failed", zap.Error(err))
	}

	if err := p.Blobs.Delete(ctx, job.BlobKey); err != nil {
		log.Warn("best-effort blob delete failed", zap.Error(err))
	}
}

func marshalSignals(s model.DetectorSignals) (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// fail refunds the user's quota (a failed job must not cost a free
// analysis, spec §7) and retries the job up to its attempt limit.
func (p *Pool) fail(ctx context.Context, log *zap.Logger, job model.Job, cause error) {
	log.Error("job failed", zap.Error(cause))
	if err := p.Users.RefundQuota(ctx, job.UserID); err != nil {
		log.Error("quota refund failed", zap.Error(err))
	}
	if err := p.Queue.Retry(ctx, job); err != nil {
		log.Error("retry enqueue failed", zap.Error(err))
	}
}
