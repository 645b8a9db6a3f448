package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"papertrail-manager/papertrail"
)

const (
	jobStatusPending    = "pending"
	jobStatusInProgress = "in_progress"
	jobStatusCompleted  = "completed"
	jobStatusFailed     = "failed"
	jobStatusCancelled  = "cancelled"
)

var errQueueFull = errors.New("download queue is full")

var (
	jobCancellersMu sync.Mutex
	jobCancellers   = make(map[string]context.CancelFunc)
)

// DownloadJob represents an archive download
type DownloadJob struct {
	ID         string    `json:"job_id"`
	FileName   string    `json:"file_name"`
	Status     string    `json:"status"` // "pending", "in_progress", "completed", "failed", "cancelled"
	Result     string    `json:"result,omitempty"`
	Path       string    `json:"path,omitempty"`
	BytesDone  int64     `json:"bytes_done"`
	TotalBytes int64     `json:"total_bytes"`
	Overwrite  bool      `json:"overwrite"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobStore manages jobs and their statuses
type JobStore struct {
	sync.RWMutex
	jobs map[string]*DownloadJob
}

var (
	logger = logrus.New()

	jobStore = newJobStore()
	jobQueue = make(chan *DownloadJob, 100) // Buffered channel with capacity of 100 jobs
)

func init() {
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)
}

func newJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*DownloadJob)}
}

func jobLogger(job *DownloadJob) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"prefix":  "DOWNLOAD_JOB",
		"job_id":  job.ID,
		"archive": job.FileName,
	})
}

func generateJobID() string {
	return uuid.New().String()
}

func (store *JobStore) addJob(job *DownloadJob) {
	store.Lock()
	defer store.Unlock()
	job.BytesDone = 0
	store.jobs[job.ID] = job
	jobLogger(job).Info("Job added")
}

// getJob returns a copy of the job so callers never race with workers.
func (store *JobStore) getJob(jobID string) (DownloadJob, bool) {
	store.RLock()
	defer store.RUnlock()
	job, exists := store.jobs[jobID]
	if !exists {
		return DownloadJob{}, false
	}
	return *job, true
}

func (store *JobStore) GetAllJobs() []DownloadJob {
	store.RLock()
	defer store.RUnlock()

	jobs := make([]DownloadJob, 0, len(store.jobs))
	for _, job := range store.jobs {
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs
}

// activeJob returns the pending or running job for fileName, if any.
func (store *JobStore) activeJob(fileName string) (DownloadJob, bool) {
	store.RLock()
	defer store.RUnlock()
	for _, job := range store.jobs {
		if job.FileName == fileName && (job.Status == jobStatusPending || job.Status == jobStatusInProgress) {
			return *job, true
		}
	}
	return DownloadJob{}, false
}

func (store *JobStore) countActive() int {
	store.RLock()
	defer store.RUnlock()
	n := 0
	for _, job := range store.jobs {
		if job.Status == jobStatusPending || job.Status == jobStatusInProgress {
			n++
		}
	}
	return n
}

func (store *JobStore) updateJobStatus(jobID, status, result string) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.Status = status
		if result != "" {
			job.Result = result
		}
		job.UpdatedAt = time.Now()
		jobLogger(job).WithField("status", status).Info("Job status updated")
	}
}

func (store *JobStore) updateBytesDone(jobID string, bytesDone int64) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.BytesDone = bytesDone
		job.UpdatedAt = time.Now()
	}
}

func (store *JobStore) setPath(jobID, path string) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.Path = path
	}
}

// addIfInactive stores job unless fileName already has a pending or running
// job, which is returned instead.
func (store *JobStore) addIfInactive(job *DownloadJob) (DownloadJob, bool) {
	store.Lock()
	defer store.Unlock()
	for _, existing := range store.jobs {
		if existing.FileName == job.FileName && (existing.Status == jobStatusPending || existing.Status == jobStatusInProgress) {
			return *existing, false
		}
	}
	job.BytesDone = 0
	store.jobs[job.ID] = job
	jobLogger(job).Info("Job added")
	return *job, true
}

// enqueueDownload queues a download of the named archive. An archive that
// is already queued or downloading returns the existing job.
func enqueueDownload(app *App, fileName string, overwrite bool) (DownloadJob, error) {
	archive, err := app.Papertrail.Archives.ByFileName(fileName)
	if err != nil {
		return DownloadJob{}, err
	}

	now := time.Now()
	job := &DownloadJob{
		ID:         generateJobID(),
		FileName:   archive.FileName,
		Status:     jobStatusPending,
		TotalBytes: archive.FileSize,
		Overwrite:  overwrite,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	queued, added := jobStore.addIfInactive(job)
	if !added {
		return queued, nil
	}

	select {
	case jobQueue <- job:
	default:
		jobStore.updateJobStatus(job.ID, jobStatusFailed, errQueueFull.Error())
		return DownloadJob{}, errQueueFull
	}
	return queued, nil
}

// cancelJob cancels a running job. Pending jobs are marked cancelled and
// skipped by the workers.
func cancelJob(jobID string) bool {
	jobCancellersMu.Lock()
	defer jobCancellersMu.Unlock()

	if cancel, running := jobCancellers[jobID]; running {
		cancel()
		return true
	}

	job, exists := jobStore.getJob(jobID)
	if !exists || job.Status != jobStatusPending {
		return false
	}
	jobStore.updateJobStatus(jobID, jobStatusCancelled, "Job cancelled by user")
	return true
}

func startWorkerPool(ctx context.Context, app *App, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			logger.Infof("Worker %d started", workerID)
			for {
				select {
				case <-ctx.Done():
					logger.Infof("Worker %d stopped", workerID)
					return
				case job := <-jobQueue:
					logger.Debugf("Worker %d processing job: %s", workerID, job.ID)
					processJob(ctx, app, job)
				}
			}
		}(i)
	}
}

func processJob(ctx context.Context, app *App, job *DownloadJob) {
	jobLog := jobLogger(job)
	jobCtx, cancel := context.WithCancel(ctx)

	// The canceller is registered before the job leaves pending, so a cancel
	// request always finds one or the other.
	jobCancellersMu.Lock()
	if current, ok := jobStore.getJob(job.ID); ok && current.Status == jobStatusCancelled {
		jobCancellersMu.Unlock()
		cancel()
		return
	}
	jobCancellers[job.ID] = cancel
	jobCancellersMu.Unlock()
	defer func() {
		cancel()
		jobCancellersMu.Lock()
		delete(jobCancellers, job.ID)
		jobCancellersMu.Unlock()
	}()

	jobStore.updateJobStatus(job.ID, jobStatusInProgress, "")

	record, err := downloadArchive(jobCtx, app, job)
	if err != nil {
		if errors.Is(jobCtx.Err(), context.Canceled) {
			jobStore.updateJobStatus(job.ID, jobStatusCancelled, "Job cancelled by user")
			jobLog.Info("Job cancelled")
		} else {
			jobLog.Errorf("Archive download failed: %v", err)
			jobStore.updateJobStatus(job.ID, jobStatusFailed, err.Error())
		}
		return
	}

	jobStore.updateJobStatus(job.ID, jobStatusCompleted, fmt.Sprintf("Downloaded %d bytes", record.Bytes))
	jobLog.Info("Job completed")
}

// partialSuffix marks a download in progress. Only verified files are
// renamed to the archive's own name, so a failed attempt never blocks a retry.
const partialSuffix = ".part"

// downloadArchive performs the download for job, verifies the file and
// records it in the database.
func downloadArchive(ctx context.Context, app *App, job *DownloadJob) (*ArchiveDownload, error) {
	archive, err := app.Papertrail.Archives.ByFileName(job.FileName)
	if err != nil {
		return nil, err
	}

	s := currentSettings()
	if err := os.MkdirAll(s.DownloadDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	finalPath := filepath.Join(s.DownloadDir, archive.FileName)
	if !job.Overwrite && !s.Overwrite {
		if _, err := os.Stat(finalPath); err == nil {
			return nil, fmt.Errorf("%s already exists, download with overwrite to replace it", finalPath)
		}
	}

	partPath := finalPath + partialSuffix
	result, err := archive.Download(ctx, papertrail.DownloadOptions{
		Dir:       s.DownloadDir,
		FileName:  archive.FileName + partialSuffix,
		Overwrite: true,
		Progress: func(_ *papertrail.Archive, bytesDownloaded int64) error {
			jobStore.updateBytesDone(job.ID, bytesDownloaded)
			return ctx.Err()
		},
	})
	if err != nil {
		removePartial(job, partPath)
		return nil, err
	}

	verification, err := verifyArchiveFile(result.Path)
	if err != nil {
		removePartial(job, partPath)
		return nil, err
	}

	record := &ArchiveDownload{
		JobID:        job.ID,
		FileName:     archive.FileName,
		Path:         finalPath,
		Bytes:        result.Bytes,
		ContentType:  verification.ContentType,
		Verified:     verification.OK,
		ArchiveStart: archive.StartTime,
	}

	if !verification.OK {
		removePartial(job, partPath)
		record.Path = partPath
		if err := InsertArchiveDownload(app.Database, record); err != nil {
			jobLogger(job).Errorf("Failed to record rejected download: %v", err)
		}
		return record, fmt.Errorf("downloaded file %s is %s, expected gzip", archive.FileName, verification.ContentType)
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		removePartial(job, partPath)
		return nil, fmt.Errorf("failed to move download into place: %w", err)
	}
	jobStore.setPath(job.ID, finalPath)

	if err := InsertArchiveDownload(app.Database, record); err != nil {
		return nil, fmt.Errorf("failed to record download: %w", err)
	}
	return record, nil
}

func removePartial(job *DownloadJob, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		jobLogger(job).Warnf("Failed to remove partial download %s: %v", path, err)
	}
}
