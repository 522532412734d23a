// Package pipeline runs note processing jobs through the
// uploading, transcribing, generating and completed stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jun/notabl/backend/internal/adapter"
	"github.com/jun/notabl/backend/internal/model"
	"github.com/jun/notabl/backend/internal/session"
	"github.com/jun/notabl/backend/internal/transcript"
)

var (
	// ErrBusy is returned when the user already has a job in flight.
	ErrBusy = errors.New("a note is already being processed")
	// ErrJobNotFound is returned for unknown jobs or jobs of another user.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished is returned when canceling a job that already ended.
	ErrJobFinished = errors.New("job already finished")
	// ErrInvalidRequest wraps validation failures of Start.
	ErrInvalidRequest = errors.New("invalid processing request")
)

const canceledMessage = "processing canceled"

// DefaultRetention is how long a finished job stays queryable once it is no
// longer the user's current job.
const DefaultRetention = 10 * time.Minute

// Request describes a source to turn into a note.
type Request struct {
	SourceType model.SourceType `json:"sourceType"`
	SourceURL  string           `json:"sourceUrl"`
	FolderID   string           `json:"folderId"`
}

// UserStatus is the processing state shown to a user.
type UserStatus struct {
	Status   model.ProcessingStatus `json:"status"`
	Progress int                    `json:"progress"`
	Steps    []model.ProcessingStep `json:"steps"`
	Job      *model.Job             `json:"job,omitempty"`
}

// Publisher receives every job transition.
type Publisher interface {
	Publish(userID string, job model.Job)
}

// Timings are the delays spent in each stage.
type Timings struct {
	Recording    time.Duration
	Uploading    time.Duration
	Transcribing time.Duration
	Generating   time.Duration
	Reset        time.Duration
}

// DefaultTimings returns the stage delays used by the web client.
func DefaultTimings() Timings {
	return Timings{
		Recording:    2 * time.Second,
		Uploading:    3 * time.Second,
		Transcribing: 3 * time.Second,
		Generating:   3 * time.Second,
		Reset:        3 * time.Second,
	}
}

func (t Timings) delay(status model.ProcessingStatus) time.Duration {
	switch status {
	case model.StatusRecording:
		return t.Recording
	case model.StatusUploading:
		return t.Uploading
	case model.StatusTranscribing:
		return t.Transcribing
	case model.StatusGenerating:
		return t.Generating
	}
	return 0
}

// Option customizes the manager.
type Option func(*Manager)

// WithTimings overrides the stage delays.
func WithTimings(t Timings) Option {
	return func(m *Manager) {
		m.timings = t
	}
}

// WithSleeper overrides how stage delays are performed (useful for tests).
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// WithInline runs jobs synchronously inside Start without stage delays.
// Used under Lambda, where the process may be frozen after the response.
func WithInline(inline bool) Option {
	return func(m *Manager) {
		m.inline = inline
	}
}

// WithRetention overrides how long finished jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		m.retention = d
	}
}

// WithClock overrides the manager's clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPublisher registers a receiver for job transitions.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

type jobState struct {
	job      model.Job
	failedAt model.ProcessingStatus
	reset    bool
	cancel   context.CancelFunc
	// finishedAt is set once the job released its lock.
	finishedAt time.Time
}

// Manager owns the processing jobs of all users.
type Manager struct {
	storage   adapter.StorageProvider
	locker    session.Locker
	fetcher   transcript.Fetcher
	publisher Publisher

	timings Timings
	sleep   func(ctx context.Context, d time.Duration) error
	inline    bool
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	jobs    map[string]*jobState
	current map[string]string // user ID -> latest job ID
	wg      sync.WaitGroup
}

// NewManager creates a Manager. fetcher may be nil when no transcript API is configured.
func NewManager(storage adapter.StorageProvider, locker session.Locker, fetcher transcript.Fetcher, opts ...Option) *Manager {
	m := &Manager{
		storage: storage,
		locker:  locker,
		fetcher: fetcher,
		timings:   DefaultTimings(),
		sleep:     sleepContext,
		retention: DefaultRetention,
		now:       time.Now,
		jobs:      make(map[string]*jobState),
		current:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.inline {
		m.timings = Timings{}
	}
	return m
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func validate(req Request) error {
	switch req.SourceType {
	case model.SourceAudio, model.SourcePDF:
	case model.SourceYouTube:
		if req.SourceURL == "" {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, transcript.ErrMissingURL)
		}
		if !transcript.IsValidYouTubeURL(req.SourceURL) {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, transcript.ErrInvalidURL)
		}
		if transcript.ExtractVideoID(req.SourceURL) == "" {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, transcript.ErrNoVideoID)
		}
	default:
		return fmt.Errorf("%w: unsupported source type %q", ErrInvalidRequest, req.SourceType)
	}
	return nil
}

// Start takes the user's processing lock and runs a new job.
// A second job while one is in flight fails with ErrBusy.
func (m *Manager) Start(ctx context.Context, userID string, req Request) (*model.Job, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.FolderID == "" {
		req.FolderID = model.ReservedFolderID
	}

	jobID := "job-" + uuid.New().String()
	if _, err := m.locker.AcquireLock(ctx, userID, jobID); err != nil {
		if errors.Is(err, session.ErrLocked) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("failed to acquire processing lock: %w", err)
	}

	// Imported videos skip recording.
	initial := model.StatusRecording
	if req.SourceType == model.SourceYouTube {
		initial = model.StatusUploading
	}
	now := m.now()
	job := model.Job{
		ID:         jobID,
		UserID:     userID,
		SourceType: req.SourceType,
		SourceURL:  req.SourceURL,
		FolderID:   req.FolderID,
		Status:     initial,
		Progress:   initial.Progress(),
		Steps:      Steps(req.SourceType, initial, ""),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Jobs outlive the request that started them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.pruneLocked(now)
	m.jobs[jobID] = &jobState{job: job, cancel: cancel}
	m.current[userID] = jobID
	m.mu.Unlock()

	log.Info().Str("job_id", jobID).Str("user_id", userID).Str("source", string(req.SourceType)).Msg("processing started")
	m.publish(job)

	if m.inline {
		m.run(runCtx, job)
		return m.Get(userID, jobID)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx, job)
	}()
	return &job, nil
}

// run walks the stages of job. It always releases the lock.
func (m *Manager) run(ctx context.Context, job model.Job) {
	logger := log.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()
	defer m.release(job)

	var result *transcript.Result
	status := job.Status
	for {
		if err := ctx.Err(); err != nil {
			m.fail(job.ID, status, err)
			return
		}
		if err := m.heartbeat(ctx, job); err != nil {
			m.fail(job.ID, status, err)
			return
		}

		var err error
		switch status {
		case model.StatusTranscribing:
			result, err = m.transcribe(ctx, job)
		case model.StatusGenerating:
			err = m.generate(ctx, job.ID, result)
		}
		if err == nil {
			err = m.sleep(ctx, m.timings.delay(status))
		}
		if err != nil {
			m.fail(job.ID, status, err)
			return
		}

		status = next(status)
		m.transition(job.ID, status)
		if status == model.StatusCompleted {
			break
		}
	}
	logger.Info().Msg("processing completed")

	if err := m.sleep(ctx, m.timings.Reset); err != nil {
		logger.Debug().Err(err).Msg("reset delay interrupted")
	}
	m.mu.Lock()
	if st, ok := m.jobs[job.ID]; ok {
		st.reset = true
	}
	m.mu.Unlock()
	logger.Info().Msg("processing status reset to idle")
}

func next(status model.ProcessingStatus) model.ProcessingStatus {
	switch status {
	case model.StatusRecording:
		return model.StatusUploading
	case model.StatusUploading:
		return model.StatusTranscribing
	case model.StatusTranscribing:
		return model.StatusGenerating
	}
	return model.StatusCompleted
}

func (m *Manager) heartbeat(ctx context.Context, job model.Job) error {
	if _, err := m.locker.Heartbeat(ctx, job.UserID, job.ID); err != nil {
		if errors.Is(err, session.ErrNotOwner) {
			return fmt.Errorf("processing lock lost: %w", err)
		}
		log.Warn().Err(err).Str("job_id", job.ID).Msg("lock heartbeat failed")
	}
	return nil
}

func (m *Manager) transcribe(ctx context.Context, job model.Job) (*transcript.Result, error) {
	if job.SourceType != model.SourceYouTube {
		return nil, nil
	}
	if m.fetcher == nil {
		return nil, transcript.ErrMissingAPIKey
	}
	return m.fetcher.Fetch(ctx, job.SourceURL)
}

func (m *Manager) generate(ctx context.Context, jobID string, result *transcript.Result) error {
	m.mu.Lock()
	job := m.jobs[jobID].job
	m.mu.Unlock()

	storage, err := m.storage.GetAdapter(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to get storage adapter: %w", err)
	}
	note, err := storage.CreateNote(ctx, NoteFor(job, result))
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	m.mu.Lock()
	m.jobs[jobID].job.NoteID = note.ID
	m.mu.Unlock()
	return nil
}

func (m *Manager) transition(jobID string, status model.ProcessingStatus) {
	m.mu.Lock()
	st := m.jobs[jobID]
	st.job.Status = status
	st.job.Progress = status.Progress()
	st.job.Steps = Steps(st.job.SourceType, status, "")
	st.job.UpdatedAt = m.now()
	job := st.job
	m.mu.Unlock()

	log.Info().Str("job_id", job.ID).Str("user_id", job.UserID).Str("status", string(status)).Msg("processing transition")
	m.publish(job)
}

func (m *Manager) fail(jobID string, at model.ProcessingStatus, err error) {
	message := err.Error()
	if errors.Is(err, context.Canceled) {
		message = canceledMessage
	}

	m.mu.Lock()
	st := m.jobs[jobID]
	st.failedAt = at
	st.job.Status = model.StatusError
	st.job.Progress = model.StatusError.Progress()
	st.job.Steps = Steps(st.job.SourceType, model.StatusError, at)
	st.job.Error = message
	st.job.UpdatedAt = m.now()
	job := st.job
	m.mu.Unlock()

	log.Error().Err(err).Str("job_id", job.ID).Str("user_id", job.UserID).Str("stage", string(at)).Msg("processing failed")
	m.publish(job)
}

func (m *Manager) release(job model.Job) {
	m.mu.Lock()
	if st, ok := m.jobs[job.ID]; ok {
		st.cancel()
		st.finishedAt = m.now()
	}
	m.mu.Unlock()

	if err := m.locker.ReleaseLock(context.Background(), job.UserID, job.ID); err != nil && !errors.Is(err, session.ErrNotOwner) {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to release processing lock")
	}
}

// pruneLocked drops finished jobs older than the retention window. The
// current job of each user is kept so Current keeps reporting it.
func (m *Manager) pruneLocked(now time.Time) {
	for id, st := range m.jobs {
		if st.finishedAt.IsZero() || now.Sub(st.finishedAt) < m.retention {
			continue
		}
		if m.current[st.job.UserID] == id {
			continue
		}
		delete(m.jobs, id)
	}
}

func (m *Manager) publish(job model.Job) {
	if m.publisher != nil {
		m.publisher.Publish(job.UserID, job)
	}
}

// Get returns a snapshot of a job owned by userID.
func (m *Manager) Get(userID, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[jobID]
	if !ok || st.job.UserID != userID {
		return nil, ErrJobNotFound
	}
	job := st.job
	return &job, nil
}

// Current returns the processing state of the user. A completed job
// reports idle once its reset delay has passed.
func (m *Manager) Current(userID string) UserStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	idle := UserStatus{Status: model.StatusIdle, Steps: Steps(model.SourceAudio, model.StatusIdle, "")}
	st, ok := m.jobs[m.current[userID]]
	if !ok {
		return idle
	}
	job := st.job
	if st.reset {
		idle.Steps = Steps(job.SourceType, model.StatusIdle, "")
		idle.Job = &job
		return idle
	}
	return UserStatus{Status: job.Status, Progress: job.Progress, Steps: job.Steps, Job: &job}
}

// Cancel stops a running job of userID. The job ends in error.
func (m *Manager) Cancel(userID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[jobID]
	if !ok || st.job.UserID != userID {
		return ErrJobNotFound
	}
	if st.job.Status.Terminal() {
		return ErrJobFinished
	}
	st.cancel()
	return nil
}

// Shutdown cancels every running job and waits for them to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, st := range m.jobs {
		st.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
