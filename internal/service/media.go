package service

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/postflow/internal/models"
)

var ErrUnsupportedMedia = errors.New("unsupported media file")

const maxUploadBytes = 512 << 20

var allowedFormats = map[string]struct{}{
	"jpg": {}, "png": {}, "gif": {}, "webp": {},
	"mp4": {}, "mov": {}, "webm": {}, "avi": {}, "mkv": {},
}

// upload is one sniffed file waiting to be stored.
type upload struct {
	data []byte
	item models.MediaItem
}

func readUploads(files []*multipart.FileHeader) ([]upload, error) {
	uploads := make([]upload, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxUploadBytes {
			return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrUnsupportedMedia, fh.Filename, maxUploadBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening file: %w", err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("error reading file content: %w", err)
		}

		item, err := describe(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		uploads = append(uploads, upload{data: data, item: item})
	}
	return uploads, nil
}

// describe sniffs the file type from its magic bytes. Image dimensions are read
// from the header; video duration and dimensions stay unknown.
func describe(data []byte) (models.MediaItem, error) {
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return models.MediaItem{}, ErrUnsupportedMedia
	}
	if _, ok := allowedFormats[kind.Extension]; !ok {
		return models.MediaItem{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, kind.Extension)
	}

	item := models.MediaItem{
		MIME:      kind.MIME.Value,
		Format:    kind.Extension,
		SizeBytes: int64(len(data)),
	}
	if filetype.IsImage(data) {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			item.Width, item.Height = cfg.Width, cfg.Height
		}
	}
	return item, nil
}

// contentKind derives the post kind from its media: none is text, any video
// makes it a video post.
func contentKind(items []models.MediaItem) models.ContentKind {
	if len(items) == 0 {
		return models.ContentKindText
	}
	for _, m := range items {
		if m.IsVideo() {
			return models.ContentKindVideo
		}
	}
	return models.ContentKindImageSet
}
