package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
)

// ScratchFiles counts the files left in the download directory. A missing
// directory holds none.
func (c *Client) ScratchFiles() (int, error) {
	entries, err := os.ReadDir(c.downloadDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read download directory with %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// photoMedia returns the media to send for a photo message. Unprotected
// photos are sent by reference; protected ones are downloaded and
// uploaded again.
func (c *Client) photoMedia(ctx context.Context, msg Message) (tg.InputMediaClass, error) {
	photo := msg.Photo
	if !msg.Protected {
		return &tg.InputMediaPhoto{
			ID: &tg.InputPhoto{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
			},
		}, nil
	}

	size := largestPhotoSize(photo.Sizes)
	if size == nil {
		return nil, fmt.Errorf("no suitable photo size found")
	}
	location := &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     size.Type,
	}

	file, err := c.transfer(ctx, location, msg.FileName, int64(size.Size))
	if err != nil {
		return nil, err
	}
	return &tg.InputMediaUploadedPhoto{File: file}, nil
}

// documentMedia is photoMedia for videos and documents.
func (c *Client) documentMedia(ctx context.Context, msg Message) (tg.InputMediaClass, error) {
	doc := msg.Document
	if !msg.Protected {
		return &tg.InputMediaDocument{
			ID: &tg.InputDocument{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
		}, nil
	}

	location := &tg.InputDocumentFileLocation{
		ID:            doc.ID,
		AccessHash:    doc.AccessHash,
		FileReference: doc.FileReference,
	}

	file, err := c.transfer(ctx, location, msg.FileName, doc.Size)
	if err != nil {
		return nil, err
	}
	return &tg.InputMediaUploadedDocument{
		File:       file,
		MimeType:   doc.MimeType,
		Attributes: doc.Attributes,
	}, nil
}

// transfer downloads a file into the scratch directory and uploads it
// again. The scratch copy is removed before returning.
func (c *Client) transfer(ctx context.Context, location tg.InputFileLocationClass, name string, size int64) (tg.InputFileClass, error) {
	if c.maxFileSize > 0 && size > c.maxFileSize {
		return nil, fmt.Errorf("%s has %d bytes, limit is %d: %w", name, size, c.maxFileSize, ErrTooLarge)
	}

	localPath, err := c.download(ctx, location, name)
	if err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	file, err := uploader.NewUploader(c.api).FromPath(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s with %w", name, Classify(err))
	}
	return file, nil
}

func (c *Client) download(ctx context.Context, location tg.InputFileLocationClass, name string) (string, error) {
	if err := os.MkdirAll(c.downloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory with %w", err)
	}

	file, err := os.CreateTemp(c.downloadDir, "*_"+filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("failed to create file with %w", err)
	}
	defer file.Close()
	localPath := file.Name()

	if _, err := downloader.NewDownloader().Download(c.api, location).Stream(ctx, file); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("failed to download %s with %w", name, Classify(err))
	}

	info, err := file.Stat()
	if err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("failed to stat downloaded file with %w", err)
	}
	if c.maxFileSize > 0 && info.Size() > c.maxFileSize {
		os.Remove(localPath)
		return "", fmt.Errorf("%s has %d bytes, limit is %d: %w", name, info.Size(), c.maxFileSize, ErrTooLarge)
	}

	slog.Debug("file downloaded", "name", name, "size", info.Size(), "path", localPath)
	return localPath, nil
}
