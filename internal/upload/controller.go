package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/vidstream/client/internal/api"
	"github.com/vidstream/client/internal/models"
	"github.com/vidstream/client/internal/realtime"
)

// MaxFileSizeBytes is the upload ceiling enforced before any transfer begins.
const MaxFileSizeBytes = 500 << 20 // 500 MiB

var allowedMimeTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/mpeg":      {},
	"video/quicktime": {},
	"video/x-msvideo": {},
	"video/webm":      {},
}

// ValidationError is a local pre-flight rejection; it never reaches the
// network and each violation carries its own user-facing reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Uploader performs the multipart transfer. The REST client satisfies it.
type Uploader interface {
	UploadVideo(ctx context.Context, meta api.UploadMeta, fileName, mimeType string, r io.Reader) (models.VideoEntity, error)
}

// EntityStore receives the entity created by a successful upload.
type EntityStore interface {
	Upsert(entity models.VideoEntity)
}

// Channel arms server-side processing after a successful transfer.
type Channel interface {
	Emit(event string, payload any) error
}

// Metadata carries the user-supplied upload fields.
type Metadata struct {
	Title       string
	Description string
	IsPublic    bool
}

// File describes the asset handed to Submit.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Content  io.Reader
}

type processVideoPayload struct {
	VideoID  string `json:"videoId"`
	FilePath string `json:"filepath"`
}

// Controller validates and transmits new video assets. On success it inserts
// the returned entity into the store and fires the processing trigger on the
// push channel; on any failure nothing is inserted and the caller resubmits.
type Controller struct {
	uploader Uploader
	store    EntityStore
	channel  Channel
	logger   *slog.Logger
}

// NewController wires the upload pipeline.
func NewController(uploader Uploader, store EntityStore, channel Channel, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		uploader: uploader,
		store:    store,
		channel:  channel,
		logger:   logger,
	}
}

// Submit validates the asset, streams it to the backend, and hands the new
// entity over to the store and the processing pipeline. onProgress receives
// percentages in [0,100], monotonically non-decreasing, with a final call at
// 100 on success. No retry is attempted on failure.
func (c *Controller) Submit(ctx context.Context, meta Metadata, file File, onProgress func(percent float64)) (models.VideoEntity, error) {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		return models.VideoEntity{}, &ValidationError{Reason: "title must not be empty"}
	}
	if _, ok := allowedMimeTypes[file.MimeType]; !ok {
		return models.VideoEntity{}, &ValidationError{Reason: fmt.Sprintf("unsupported video format %q; allowed formats are MP4, MPEG, MOV, AVI and WEBM", file.MimeType)}
	}
	if file.Size > MaxFileSizeBytes {
		return models.VideoEntity{}, &ValidationError{Reason: "file exceeds the 500 MiB size limit"}
	}

	body := file.Content
	if onProgress != nil && file.Size > 0 {
		body = &progressReader{r: file.Content, total: file.Size, report: onProgress}
	}

	uploadMeta := api.UploadMeta{
		Title:       title,
		Description: meta.Description,
		IsPublic:    meta.IsPublic,
	}
	video, err := c.uploader.UploadVideo(ctx, uploadMeta, file.Name, file.MimeType, body)
	if err != nil {
		return models.VideoEntity{}, err
	}

	if onProgress != nil {
		onProgress(100)
	}

	c.store.Upsert(video)

	// Fire and forget: the synchronization engine picks up progress for this
	// id from here on, and the pull path recovers state if the emit is lost.
	payload := processVideoPayload{VideoID: video.ID, FilePath: video.FilePath}
	if err := c.channel.Emit(realtime.EventProcessVideo, payload); err != nil {
		c.logger.Warn("processing trigger not sent", "videoId", video.ID, "error", err)
	}

	return video, nil
}

// progressReader reports transfer progress as bytes flow to the wire. The
// reported percentage never decreases and never exceeds 100.
type progressReader struct {
	r      io.Reader
	total  int64
	report func(float64)

	mu      sync.Mutex
	read    int64
	percent float64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		percent := float64(p.read) * 100 / float64(p.total)
		if percent > 100 {
			percent = 100
		}
		if percent > p.percent {
			p.percent = percent
			report := p.report
			p.mu.Unlock()
			report(percent)
		} else {
			p.mu.Unlock()
		}
	}
	return n, err
}
