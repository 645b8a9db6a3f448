package papertrail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultChunkSize is the number of bytes read per step of an archive download.
const DefaultChunkSize = 8196

type link struct {
	Href string `json:"href"`
}

type links struct {
	Self     link `json:"self"`
	HTML     link `json:"html"`
	Search   link `json:"search"`
	Download link `json:"download"`
}

type rawArchive struct {
	Start             string `json:"start"`
	End               string `json:"end"`
	StartFormatted    string `json:"start_formatted"`
	DurationFormatted string `json:"duration_formatted"`
	Filename          string `json:"filename"`
	Filesize          int64  `json:"filesize"`
	Links             links  `json:"_links"`
}

// Archive is one hourly or daily log archive.
type Archive struct {
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
	FormattedStartTime string        `json:"formatted_start_time"`
	FormattedDuration  string        `json:"formatted_duration"`
	FileName           string        `json:"file_name"`
	FileSize           int64         `json:"file_size"`
	Link               string        `json:"link"`
	Duration           time.Duration `json:"duration"`

	client *Client

	mu           sync.Mutex
	downloading  bool
	downloaded   bool
	downloadPath string
}

func newArchive(client *Client, raw rawArchive) (*Archive, error) {
	const op = "parse archive"
	if raw.Start == "" || raw.End == "" || raw.Filename == "" || raw.Links.Download.Href == "" {
		return nil, newError(KindArchives, op, fmt.Errorf("%w: missing keys, maybe papertrail changed their response", ErrInvalidResponse))
	}
	start, err := parseTimestamp(raw.Start)
	if err != nil {
		return nil, newError(KindArchives, op, err)
	}
	end, err := parseTimestamp(raw.End)
	if err != nil {
		return nil, newError(KindArchives, op, err)
	}
	duration, err := parseArchiveDuration(raw.DurationFormatted)
	if err != nil {
		return nil, newError(KindArchives, op, err)
	}
	return &Archive{
		StartTime:          start,
		EndTime:            end,
		FormattedStartTime: raw.StartFormatted,
		FormattedDuration:  raw.DurationFormatted,
		FileName:           raw.Filename,
		FileSize:           raw.Filesize,
		Link:               raw.Links.Download.Href,
		Duration:           duration,
		client:             client,
	}, nil
}

func parseArchiveDuration(formatted string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(formatted)) {
	case "1 hour":
		return time.Hour, nil
	case "1 day":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDuration, formatted)
	}
}

// IsDownloading reports whether a download of this archive is in progress.
func (a *Archive) IsDownloading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.downloading
}

// IsDownloaded reports whether this archive was downloaded successfully.
func (a *Archive) IsDownloaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.downloaded
}

// DownloadPath is the path of the last successful download, empty if none.
func (a *Archive) DownloadPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.downloadPath
}

// ProgressFunc is called after every chunk with the bytes downloaded so far.
// Returning an error aborts the download.
type ProgressFunc func(archive *Archive, bytesDownloaded int64) error

// DownloadOptions controls Archive.Download.
type DownloadOptions struct {
	// Dir must be an existing directory.
	Dir string
	// FileName overrides the archive's file name.
	FileName  string
	Overwrite bool
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int
	Progress  ProgressFunc
}

// DownloadResult describes a finished download.
type DownloadResult struct {
	Bytes int64
	Path  string
}

// Download streams the archive into opts.Dir. Only one download of an
// archive may run at a time.
func (a *Archive) Download(ctx context.Context, opts DownloadOptions) (DownloadResult, error) {
	const op = "download"

	a.mu.Lock()
	if a.downloading {
		a.mu.Unlock()
		return DownloadResult{}, newError(KindArchives, op, ErrAlreadyDownloading)
	}
	a.downloading = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.downloading = false
		a.mu.Unlock()
	}()

	logger := log.WithFields(logrus.Fields{
		"archive": a.FileName,
		"dir":     opts.Dir,
	})

	info, err := os.Stat(opts.Dir)
	if err != nil || !info.IsDir() {
		return DownloadResult{}, invalidParameter(KindArchives, op, fmt.Sprintf("destination %s is not a directory", opts.Dir))
	}

	fileName := opts.FileName
	if fileName == "" {
		fileName = a.FileName
	}
	downloadPath := filepath.Join(opts.Dir, fileName)
	failed := func(err error) (DownloadResult, error) {
		return DownloadResult{}, &Error{Kind: KindArchives, Op: op, Path: downloadPath, Err: err}
	}

	if !opts.Overwrite {
		if _, err := os.Stat(downloadPath); err == nil {
			return failed(fmt.Errorf("%w: destination already exists", ErrInvalidParameter))
		}
	}

	if a.client == nil {
		return failed(errors.New("archive has no client"))
	}
	resp, err := a.client.stream(ctx, a.Link)
	if err != nil {
		return failed(fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	file, err := os.Create(downloadPath)
	if err != nil {
		return failed(fmt.Errorf("open for writing: %w", err))
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)

	var downloaded, written int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			downloaded += int64(n)
			w, writeErr := file.Write(buf[:n])
			written += int64(w)
			if writeErr != nil {
				file.Close()
				return failed(fmt.Errorf("write: %w", writeErr))
			}
			if opts.Progress != nil {
				if err := opts.Progress(a, downloaded); err != nil {
					file.Close()
					return failed(fmt.Errorf("progress callback: %w", err))
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			file.Close()
			return failed(fmt.Errorf("read: %w", readErr))
		}
	}

	if err := file.Close(); err != nil {
		return failed(fmt.Errorf("close: %w", err))
	}
	if downloaded != written {
		return failed(fmt.Errorf("downloaded bytes does not match written bytes: %d != %d", downloaded, written))
	}

	a.mu.Lock()
	a.downloaded = true
	a.downloadPath = downloadPath
	a.mu.Unlock()

	logger.WithField("bytes", downloaded).Info("Archive downloaded")
	return DownloadResult{Bytes: downloaded, Path: downloadPath}, nil
}

// Archives is the account's archive list.
type Archives struct {
	collection[Archive]
	client *Client
}

func newArchives(client *Client) *Archives {
	return &Archives{client: client}
}

// Load fetches the archive list from Papertrail.
func (a *Archives) Load(ctx context.Context) error {
	var raws []rawArchive
	if err := a.client.getJSON(ctx, "archives.json", nil, &raws); err != nil {
		return newError(KindArchives, "load", err)
	}
	items := make([]*Archive, 0, len(raws))
	for _, raw := range raws {
		archive, err := newArchive(a.client, raw)
		if err != nil {
			return err
		}
		items = append(items, archive)
	}
	a.replace(items, now())
	log.WithField("count", len(items)).Debug("Archives loaded")
	return nil
}

// ByFileName looks an archive up by its file name.
func (a *Archives) ByFileName(name string) (*Archive, error) {
	if archive, ok := a.find(func(x *Archive) bool { return x.FileName == name }); ok {
		return archive, nil
	}
	return nil, notFound(KindArchives, "lookup", fmt.Sprintf("file name %q", name))
}

// ByStartTime looks an archive up by its start time, compared in UTC.
func (a *Archives) ByStartTime(t time.Time) (*Archive, error) {
	search := t.UTC()
	if archive, ok := a.find(func(x *Archive) bool { return x.StartTime.Equal(search) }); ok {
		return archive, nil
	}
	return nil, notFound(KindArchives, "lookup", fmt.Sprintf("start time %s", search.Format(time.RFC3339)))
}

// Between returns archives whose start time is in [start, stop).
func (a *Archives) Between(start, stop time.Time) ([]*Archive, error) {
	if start.After(stop) {
		return nil, invalidParameter(KindArchives, "between", "start is after stop")
	}
	return a.filter(func(x *Archive) bool {
		return !x.StartTime.Before(start) && x.StartTime.Before(stop)
	}), nil
}

// Missing returns the archives for which isKnown reports false.
func (a *Archives) Missing(isKnown func(fileName string) bool) []*Archive {
	return a.filter(func(x *Archive) bool { return !isKnown(x.FileName) })
}
