package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/ytget/plastic-in-river/internal/cache"
	"github.com/ytget/plastic-in-river/internal/model"
)

const (
	// DefaultMaxParallel is used when NewService gets a non-positive limit
	DefaultMaxParallel = 3
	// MaxParallelLimit caps SetMaxParallelDownloads
	MaxParallelLimit = 10
	// DefaultRetries is the number of extra attempts after a failure
	DefaultRetries = 1
	// DefaultRetryBackoff is the fixed delay between attempts
	DefaultRetryBackoff = 2 * time.Second
	// DefaultIdleTimeout fails a transfer when no bytes arrive for this long
	DefaultIdleTimeout = time.Minute

	dialTimeout = 30 * time.Second

	progressInterval = 500 * time.Millisecond
	downloadsSubdir  = "downloads"
)

var logger Logger = log.Default()

// SetLogger replaces the package logger; nil restores the standard logger
func SetLogger(l Logger) {
	if l == nil {
		l = log.Default()
	}
	logger = l
}

// StatusError is returned for HTTP responses outside the 2xx range
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d for %s", e.StatusCode, e.URL)
}

// Temporary reports whether retrying the request may succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == fasthttp.StatusRequestTimeout || e.StatusCode == fasthttp.StatusTooManyRequests
}

// Service handles download operations
type Service struct {
	tasks       map[string]*model.DownloadTask
	tasksMutex  sync.RWMutex
	maxParallel int
	retries     int
	backoff     time.Duration
	force       bool
	cacheDir    string
	index       *cache.Index
	client      *fasthttp.Client
	idleTimeout atomic.Int64              // nanoseconds, read by the dialer
	onUpdate    func(*model.DownloadTask) // callback for progress updates
}

// NewService creates a download service storing files under cacheDir.
// index may be nil, in which case every call downloads afresh.
func NewService(cacheDir string, index *cache.Index, maxParallel int) *Service {
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	s := &Service{
		tasks:       make(map[string]*model.DownloadTask),
		maxParallel: min(maxParallel, MaxParallelLimit),
		retries:     DefaultRetries,
		backoff:     DefaultRetryBackoff,
		cacheDir:    cacheDir,
		index:       index,
	}
	s.idleTimeout.Store(int64(DefaultIdleTimeout))
	// No ReadTimeout: for streamed bodies it bounds the whole transfer.
	// Stalls are caught per read by the idle deadline of the dialed conn.
	s.client = &fasthttp.Client{
		Name:                "plastic-in-river",
		StreamResponseBody:  true,
		WriteTimeout:        30 * time.Second,
		MaxIdleConnDuration: 30 * time.Second,
		Dial:                s.dial,
	}
	return s
}

func (s *Service) dial(addr string) (net.Conn, error) {
	conn, err := fasthttp.DialTimeout(addr, dialTimeout)
	if err != nil {
		return nil, err
	}
	return newIdleConn(conn, time.Duration(s.idleTimeout.Load())), nil
}

// SetUpdateCallback sets the callback function for task updates.
// The callback receives a snapshot and may be invoked from several goroutines.
func (s *Service) SetUpdateCallback(callback func(*model.DownloadTask)) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.onUpdate = callback
}

// SetMaxParallelDownloads sets the number of concurrent transfers, clamped to 1..10
func (s *Service) SetMaxParallelDownloads(max int) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.maxParallel = clamp(max, 1, MaxParallelLimit)
}

// SetRetries sets how many extra attempts a failed transfer gets
func (s *Service) SetRetries(n int) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.retries = max(n, 0)
}

// SetRetryBackoff sets the fixed delay between attempts
func (s *Service) SetRetryBackoff(d time.Duration) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.backoff = max(d, 0)
}

// SetIdleTimeout sets how long a transfer may go without receiving bytes.
// It applies to connections dialed afterwards; non-positive values restore
// the default.
func (s *Service) SetIdleTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultIdleTimeout
	}
	s.idleTimeout.Store(int64(d))
}

// SetForce makes Download ignore cached copies
func (s *Service) SetForce(force bool) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.force = force
}

// GetTask returns a snapshot of a task by ID
func (s *Service) GetTask(id string) (*model.DownloadTask, bool) {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	task, exists := s.tasks[id]
	if !exists {
		return nil, false
	}
	snapshot := *task
	return &snapshot, true
}

// GetAllTasks returns snapshots of all tasks ordered by start time
func (s *Service) GetAllTasks() []*model.DownloadTask {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	tasks := make([]*model.DownloadTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		snapshot := *task
		tasks = append(tasks, &snapshot)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].StartedAt.Before(tasks[j].StartedAt)
	})
	return tasks
}

// RemoveTask forgets a finished task
func (s *Service) RemoveTask(id string) error {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task not found: %s", id)
	}
	if !task.Status.IsFinished() {
		return fmt.Errorf("task is still running: %s", task.Status)
	}
	delete(s.tasks, id)
	return nil
}

// Download fetches all URLs concurrently and returns the local path of each
// under the same key. The first failure cancels the remaining transfers and
// is returned wrapped with its key.
func (s *Service) Download(ctx context.Context, urls map[string]string) (map[string]string, error) {
	batch, err := s.DownloadBatch(ctx, urls)
	if err != nil {
		return nil, err
	}
	return batch.Paths(), nil
}

// DownloadBatch is Download returning the full task bookkeeping
func (s *Service) DownloadBatch(ctx context.Context, urls map[string]string) (*model.DownloadBatch, error) {
	batch := model.NewDownloadBatch(generateTaskID())
	if len(urls) == 0 {
		batch.UpdateStatus(model.BatchStatusCompleted)
		return batch, nil
	}

	keys := make([]string, 0, len(urls))
	for key := range urls {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	s.tasksMutex.Lock()
	for _, key := range keys {
		task := &model.DownloadTask{
			ID:         generateTaskID(),
			Key:        key,
			URL:        urls[key],
			Status:     model.TaskStatusPending,
			BytesTotal: -1,
			ETASec:     -1,
			StartedAt:  time.Now(),
		}
		s.tasks[task.ID] = task
		batch.AddTask(task)
	}
	slots := make(chan struct{}, s.maxParallel)
	s.tasksMutex.Unlock()

	batch.UpdateStatus(model.BatchStatusDownloading)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, task := range batch.Tasks {
		wg.Add(1)
		go func(task *model.DownloadTask) {
			defer wg.Done()
			if err := s.runTask(ctx, task, slots); err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("download %s: %w", task.Key, err)
					cancel()
				})
			}
		}(task)
	}
	wg.Wait()

	if firstErr != nil {
		batch.UpdateStatus(model.BatchStatusError)
		return batch, firstErr
	}
	batch.UpdateStatus(model.BatchStatusCompleted)
	return batch, nil
}

// runTask resolves one task from the cache or the network
func (s *Service) runTask(ctx context.Context, task *model.DownloadTask, slots chan struct{}) error {
	if err := ctx.Err(); err != nil {
		s.finishTask(task, "", err)
		return err
	}
	s.setStatus(task, model.TaskStatusStarting)

	select {
	case slots <- struct{}{}:
	case <-ctx.Done():
		s.finishTask(task, "", ctx.Err())
		return ctx.Err()
	}
	defer func() { <-slots }()

	if entry, ok := s.lookupCache(task.URL); ok {
		s.tasksMutex.Lock()
		task.Status = model.TaskStatusCached
		task.OutputPath = entry.Path
		task.SetProgress(entry.Size, entry.Size)
		task.FinishedAt = time.Now()
		s.tasksMutex.Unlock()
		s.notifyUpdate(task)
		logger.Printf("Using cached %s for %s", entry.Path, task.Key)
		return nil
	}

	s.setStatus(task, model.TaskStatusDownloading)
	outputPath, err := s.downloadWithRetry(ctx, task)
	s.finishTask(task, outputPath, err)
	return err
}

// finishTask records the final status of a task
func (s *Service) finishTask(task *model.DownloadTask, outputPath string, err error) {
	s.tasksMutex.Lock()
	switch {
	case err == nil:
		task.Status = model.TaskStatusCompleted
		task.OutputPath = outputPath
		task.Progress = 1.0
		task.Percent = 100
	case errors.Is(err, context.Canceled):
		task.Status = model.TaskStatusStopped
	default:
		task.Status = model.TaskStatusError
		task.LastError = err.Error()
	}
	task.FinishedAt = time.Now()
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
}

// downloadWithRetry attempts download with retry logic
func (s *Service) downloadWithRetry(ctx context.Context, task *model.DownloadTask) (string, error) {
	s.tasksMutex.RLock()
	maxRetries := s.retries
	backoff := s.backoff
	s.tasksMutex.RUnlock()

	dest := s.CachePath(task.URL)
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Backoff delay
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}

			logger.Printf("Retrying download for %s, attempt %d", task.Key, attempt+1)
		}

		s.tasksMutex.Lock()
		task.Attempts = attempt + 1
		s.tasksMutex.Unlock()

		err := s.fetch(ctx, task, dest)
		if err == nil {
			return dest, nil
		}

		lastErr = err
		logger.Printf("Download attempt %d failed for %s: %v", attempt+1, task.Key, err)

		// Check if we should retry
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			break
		}
	}

	return "", lastErr
}

// CachePath returns where the file for rawURL is stored:
// {cache_dir}/downloads/{sha256(url)[:16]}/{basename}
func (s *Service) CachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(s.cacheDir, downloadsSubdir, hex.EncodeToString(sum[:])[:16], baseName(rawURL))
}

func (s *Service) lookupCache(rawURL string) (cache.Entry, bool) {
	s.tasksMutex.RLock()
	force := s.force
	s.tasksMutex.RUnlock()

	if force || s.index == nil {
		return cache.Entry{}, false
	}
	entry, err := s.index.Lookup(rawURL)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Printf("Cache lookup failed for %s: %v", rawURL, err)
		}
		return cache.Entry{}, false
	}
	if !entry.Valid() {
		logger.Printf("Cached file %s is missing or truncated, downloading again", entry.Path)
		return cache.Entry{}, false
	}
	return entry, true
}

// fetch transfers one URL into dest through a temporary file
func (s *Service) fetch(ctx context.Context, task *model.DownloadTask, dest string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmpPath := filepath.Join(filepath.Dir(dest), "."+uuid.NewString()+".part")
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	pw := s.newProgressWriter(ctx, task)
	var etag string
	if localPath, ok := localSource(task.URL); ok {
		err = copyLocal(localPath, pw.withTotal(fileSize(localPath)), f)
	} else {
		etag, err = s.fetchHTTP(task.URL, pw, f)
	}
	if err != nil {
		return err
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	if s.index != nil {
		entry := cache.Entry{
			URL:    task.URL,
			Path:   dest,
			Size:   pw.done,
			SHA256: hex.EncodeToString(pw.hash.Sum(nil)),
			ETag:   etag,
		}
		if putErr := s.index.Put(entry); putErr != nil {
			logger.Printf("Failed to record %s in cache index: %v", task.URL, putErr)
		}
	}
	return nil
}

// fetchHTTP streams the response body of rawURL into w
func (s *Service) fetchHTTP(rawURL string, pw *progressWriter, w io.Writer) (string, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := s.client.Do(req, resp); err != nil {
		return "", fmt.Errorf("request %s: %w", rawURL, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return "", &StatusError{URL: rawURL, StatusCode: code}
	}

	etag := string(resp.Header.Peek(fasthttp.HeaderETag))
	pw.withTotal(int64(resp.Header.ContentLength()))

	var body io.Reader
	if stream := resp.BodyStream(); stream != nil {
		body = stream
	} else {
		body = bytes.NewReader(resp.Body())
	}
	if _, err := io.Copy(io.MultiWriter(w, pw), body); err != nil {
		return "", fmt.Errorf("read body of %s: %w", rawURL, err)
	}
	pw.flush()
	return etag, nil
}

func copyLocal(src string, pw *progressWriter, w io.Writer) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if _, err := io.Copy(io.MultiWriter(w, pw), in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	pw.flush()
	return nil
}

// localSource reports whether rawURL names a local file and returns its path
func localSource(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return strings.TrimPrefix(rawURL, "file://"), true
		}
		return filepath.FromSlash(u.Path), true
	}
	if !strings.Contains(rawURL, "://") {
		return rawURL, true
	}
	return "", false
}

func baseName(rawURL string) string {
	name := ""
	if localPath, ok := localSource(rawURL); ok {
		name = filepath.Base(localPath)
	} else if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" || name == string(filepath.Separator) {
		return "download"
	}
	return name
}

func fileSize(p string) int64 {
	info, err := os.Stat(p)
	if err != nil {
		return -1
	}
	return info.Size()
}

func (s *Service) setStatus(task *model.DownloadTask, status model.TaskStatus) {
	s.tasksMutex.Lock()
	task.Status = status
	s.tasksMutex.Unlock()
	s.notifyUpdate(task)
}

// notifyUpdate calls the update callback if set
func (s *Service) notifyUpdate(task *model.DownloadTask) {
	s.tasksMutex.RLock()
	callback := s.onUpdate
	snapshot := *task
	s.tasksMutex.RUnlock()

	if callback != nil {
		callback(&snapshot)
	}
}

// progressWriter counts and hashes transferred bytes and reports progress
type progressWriter struct {
	ctx        context.Context
	svc        *Service
	task       *model.DownloadTask
	hash       hash.Hash
	done       int64
	total      int64
	started    time.Time
	lastNotify time.Time
}

func (s *Service) newProgressWriter(ctx context.Context, task *model.DownloadTask) *progressWriter {
	return &progressWriter{
		ctx:     ctx,
		svc:     s,
		task:    task,
		hash:    sha256.New(),
		total:   -1,
		started: time.Now(),
	}
}

func (pw *progressWriter) withTotal(total int64) *progressWriter {
	if total < 0 {
		total = -1
	}
	pw.total = total
	return pw
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	if err := pw.ctx.Err(); err != nil {
		return 0, err
	}
	pw.hash.Write(p)
	pw.done += int64(len(p))

	if time.Since(pw.lastNotify) >= progressInterval {
		pw.flush()
	}
	return len(p), nil
}

// flush publishes the current counters to the task
func (pw *progressWriter) flush() {
	pw.lastNotify = time.Now()

	pw.svc.tasksMutex.Lock()
	pw.task.SetProgress(pw.done, pw.total)

	// Calculate speed
	elapsed := time.Since(pw.started).Seconds()
	if elapsed > 0 {
		bytesPerSecond := float64(pw.done) / elapsed
		pw.task.Speed = fmt.Sprintf("%.1fMB/s", bytesPerSecond/1024/1024)

		// Calculate ETA
		if pw.total > 0 && bytesPerSecond > 0 {
			pw.task.ETASec = int(float64(pw.total-pw.done) / bytesPerSecond)
		}
	}
	pw.svc.tasksMutex.Unlock()

	pw.svc.notifyUpdate(pw.task)
}

// generateTaskID generates a unique task ID
func generateTaskID() string {
	return "task-" + uuid.New().String()
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
