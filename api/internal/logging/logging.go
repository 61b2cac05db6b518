// Package logging builds the zap logger shared by cmd/bot and cmd/worker.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"go.uber.org/zap"
)

// New returns a production logger, or a development one when LOG_DEV=1 —
// mirrors the teacher's environment-gated verbosity (cfg.Port, cfg.Debug).
func New() *zap.Logger {
	if os.Getenv("LOG_DEV") == "1" {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}

// AnonymizeUserID returns the first 8 hex chars of sha256(userID) — the
// only user-identifying value the logging middleware is allowed to record
// (spec §4.1: "PII must NOT be logged").
func AnonymizeUserID(userID int64) string {
	b := []byte{
		byte(userID >> 56), byte(userID >> 48), byte(userID >> 40), byte(userID >> 32),
		byte(userID >> 24), byte(userID >> 16), byte(userID >> 8), byte(userID),
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:8]
}
