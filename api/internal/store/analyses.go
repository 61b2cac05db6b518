package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"imageverify/api/internal/model"
	"imageverify/api/internal/scenario"
)

// AnalysisRepo persists completed analyses and serves the duplicate-upload
// lookups the ingress middleware needs before enqueueing a new job
// (spec §4.4).
type AnalysisRepo struct {
	db *sql.DB
}

func NewAnalysisRepo(db *sql.DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

func (r *AnalysisRepo) Create(ctx context.Context, rec model.AnalysisRecord) error {
	const q = `
		INSERT INTO analyses (analysis_id, user_id, scenario, verdict, confidence, reason,
		                       processing_time_ms, result_blob, image_sha256, phash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (analysis_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, q,
		rec.AnalysisID, rec.UserID, string(rec.Scenario), string(rec.Verdict), rec.Confidence, rec.Reason,
		rec.ProcessingTimeMs, []byte(rec.ResultBlob), rec.ImageSHA256, rec.PHash, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("analyses.Create: %w", err)
	}
	return nil
}

// FindRecentByHash returns the most recent analysis by this user for an
// exact image_sha256 match within window, or sql.ErrNoRows if none exists
// (spec §4.1/§4.4: duplicate-upload detection is scoped per (user_id,
// image_sha256), never global across users).
func (r *AnalysisRepo) FindRecentByHash(ctx context.Context, userID int64, imageSHA256 string, window time.Duration) (model.AnalysisRecord, error) {
	const q = `
		SELECT analysis_id, user_id, scenario, verdict, confidence, reason,
		       processing_time_ms, result_blob, image_sha256, phash, created_at
		FROM analyses
		WHERE user_id = $1 AND image_sha256 = $2 AND created_at >= $3
		ORDER BY created_at DESC LIMIT 1`
	return r.scanOne(ctx, q, userID, imageSHA256, time.Now().Add(-window))
}

// FindRecentByPHash returns this user's recent analyses with a non-empty
// perceptual hash within window, for the caller to compare via Hamming
// distance (spec §4.1/§4.4: duplicate-upload detection is scoped per
// (user_id, phash), never global across users).
func (r *AnalysisRepo) FindRecentByPHash(ctx context.Context, userID int64, window time.Duration) ([]model.AnalysisRecord, error) {
	const q = `
		SELECT analysis_id, user_id, scenario, verdict, confidence, reason,
		       processing_time_ms, result_blob, image_sha256, phash, created_at
		FROM analyses
		WHERE user_id = $1 AND phash != '' AND created_at >= $2
		ORDER BY created_at DESC LIMIT 200`
	rows, err := r.db.QueryContext(ctx, q, userID, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("analyses.FindRecentByPHash: %w", err)
	}
	defer rows.Close()

	var out []model.AnalysisRecord
	for rows.Next() {
		rec, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("analyses.FindRecentByPHash: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *AnalysisRepo) scanOne(ctx context.Context, q string, args ...any) (model.AnalysisRecord, error) {
	row := r.db.QueryRowContext(ctx, q, args...)
	rec, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AnalysisRecord{}, sql.ErrNoRows
	}
	if err != nil {
		return model.AnalysisRecord{}, fmt.Errorf("analyses.scanOne: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (model.AnalysisRecord, error) {
	var rec model.AnalysisRecord
	var scn, verdict string
	var blob []byte
	err := s.Scan(&rec.AnalysisID, &rec.UserID, &scn, &verdict, &rec.Confidence, &rec.Reason,
		&rec.ProcessingTimeMs, &blob, &rec.ImageSHA256, &rec.PHash, &rec.CreatedAt)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	rec.Scenario = scenario.Scenario(scn)
	rec.Verdict = model.Verdict(verdict)
	rec.ResultBlob = json.RawMessage(blob)
	return rec, nil
}
