package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"imageverify/api/internal/blobstore"
)

// Downloader fetches an uploaded file's bytes from Telegram and stashes
// them in the blob store under the job's temp key (spec §6 "blob_key").
type Downloader struct {
	Bot   *tgbotapi.BotAPI
	Blobs *blobstore.Store
	httpc *http.Client
}

func NewDownloader(bot *tgbotapi.BotAPI, blobs *blobstore.Store) *Downloader {
	return &Downloader{Bot: bot, Blobs: blobs, httpc: &http.Client{Timeout: 30 * time.Second}}
}

func (d *Downloader) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := d.Bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("telegram: get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(d.Bot.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: build download request: %w", err)
	}
	resp, err := d.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("telegram: read download: %w", err)
	}
	return data, nil
}

func (d *Downloader) Upload(ctx context.Context, key string, data []byte) error {
	return d.Blobs.Put(ctx, key, data, http.DetectContentType(data))
}
