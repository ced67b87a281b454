package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vidstream/client/internal/api"
	"github.com/vidstream/client/internal/models"
	"github.com/vidstream/client/internal/policy"
)

// Fetcher supplies fresh video snapshots from the pull path.
type Fetcher interface {
	ListVideos(ctx context.Context, filters api.Filters) ([]models.VideoEntity, error)
}

const refetchTimeout = 30 * time.Second

// Store is the canonical in-memory collection of video entities. Every view
// reads through it and every update source (REST snapshot, push event, local
// mutation) writes through its operations; nothing else may hold a mutable
// copy.
type Store struct {
	fetcher  Fetcher
	logger   *slog.Logger
	debounce time.Duration

	mu          sync.RWMutex
	videos      map[string]models.VideoEntity
	order       []string
	progress    map[string]models.ProgressEvent
	refetch     map[string]*time.Timer
	lastFilters api.Filters
	lastErr     error
	closed      bool

	subs    map[int]func()
	nextSub int
}

// New constructs a store that re-fetches through fetcher. The debounce window
// collapses repeated completion events into a single deferred re-fetch.
func New(fetcher Fetcher, debounce time.Duration, logger *slog.Logger) *Store {
	if debounce <= 0 {
		debounce = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fetcher:  fetcher,
		logger:   logger,
		debounce: debounce,
		videos:   make(map[string]models.VideoEntity),
		progress: make(map[string]models.ProgressEvent),
		refetch:  make(map[string]*time.Timer),
		subs:     make(map[int]func()),
	}
}

// Subscribe registers a change listener, fired after every successful
// mutation. The returned function deregisters it.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	listeners := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}

// FetchAll replaces the whole visible collection with a fresh snapshot. On
// failure the previous collection is left untouched and the error is both
// returned and retained as the store's error state. Concurrent calls are not
// coalesced; the latest response wins.
func (s *Store) FetchAll(ctx context.Context, filters api.Filters) error {
	videos, err := s.fetcher.ListVideos(ctx, filters)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.videos = make(map[string]models.VideoEntity, len(videos))
	s.order = s.order[:0]
	for _, v := range videos {
		if v.ID == "" {
			continue
		}
		if _, dup := s.videos[v.ID]; dup {
			continue
		}
		s.videos[v.ID] = v
		s.order = append(s.order, v.ID)
	}
	s.lastFilters = filters
	s.lastErr = nil
	s.mu.Unlock()

	s.notify()
	return nil
}

// Upsert inserts the entity when its id is unknown and merges otherwise.
// Merging replaces only the fields the incoming payload carries; fields it
// omits keep their previous values. New entities are placed at the front of
// the listing, matching upload flow expectations.
func (s *Store) Upsert(entity models.VideoEntity) {
	if entity.ID == "" {
		return
	}

	s.mu.Lock()
	existing, ok := s.videos[entity.ID]
	if !ok {
		s.videos[entity.ID] = entity
		s.order = append([]string{entity.ID}, s.order...)
	} else {
		s.videos[entity.ID] = merge(existing, entity)
	}
	s.mu.Unlock()

	s.notify()
}

// Remove drops the entity and its progress bookkeeping. Call it only after
// the backend confirmed deletion; a failed delete must never hide content.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	if _, ok := s.videos[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.videos, id)
	delete(s.progress, id)
	if timer, ok := s.refetch[id]; ok {
		timer.Stop()
		delete(s.refetch, id)
	}
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify()
}

// ApplyProgressEvent folds a push-channel update into the entity and the side
// progress map. Events for unknown ids are dropped (a later fetch supplies the
// authoritative state); events with lower progress than already recorded are
// discarded as stale replays. A completion event schedules exactly one
// debounced re-fetch so fields the channel does not carry catch up.
func (s *Store) ApplyProgressEvent(event models.ProgressEvent) {
	s.mu.Lock()
	existing, ok := s.videos[event.VideoID]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("progress for unknown video dropped", "videoId", event.VideoID, "progress", event.Progress)
		return
	}
	if event.Progress < existing.ProcessingProgress {
		s.mu.Unlock()
		s.logger.Debug("stale progress event discarded", "videoId", event.VideoID, "progress", event.Progress, "recorded", existing.ProcessingProgress)
		return
	}

	if event.Status != "" && existing.Status.CanTransitionTo(event.Status) {
		existing.Status = event.Status
	}
	existing.ProcessingProgress = event.Progress
	if event.SensitivityStatus != "" && !existing.SensitivityStatus.Resolved() {
		existing.SensitivityStatus = event.SensitivityStatus
	}
	s.videos[event.VideoID] = existing
	s.progress[event.VideoID] = event

	if event.Status == models.StatusCompleted && !s.closed {
		// An already-armed schedule for this id stays in place.
		if _, armed := s.refetch[event.VideoID]; !armed {
			id := event.VideoID
			s.refetch[id] = time.AfterFunc(s.debounce, func() { s.deferredRefetch(id) })
		}
	}
	s.mu.Unlock()

	s.notify()
}

// RecordFailure stores a synthetic failed-progress entry for a video so any
// progress display reflects the failure instead of freezing. The entity
// itself is left to the authoritative pull path.
func (s *Store) RecordFailure(videoID, message string) {
	if videoID == "" {
		return
	}

	s.mu.Lock()
	s.progress[videoID] = models.ProgressEvent{
		VideoID:  videoID,
		Progress: 0,
		Status:   models.StatusFailed,
		Message:  message,
	}
	s.mu.Unlock()

	s.notify()
}

func (s *Store) deferredRefetch(id string) {
	s.mu.Lock()
	delete(s.refetch, id)
	filters := s.lastFilters
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()

	if err := s.FetchAll(ctx, filters); err != nil {
		s.logger.Warn("deferred re-fetch failed", "videoId", id, "error", err)
	}
}

// Videos returns a copy of the collection in listing order.
func (s *Store) Videos() []models.VideoEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.VideoEntity, 0, len(s.order))
	for _, id := range s.order {
		if v, ok := s.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// VisibleTo returns the subset of the collection the given user may view,
// evaluated fresh against the access policy.
func (s *Store) VisibleTo(user models.User) []models.VideoEntity {
	all := s.Videos()
	out := all[:0]
	for _, v := range all {
		if policy.Evaluate(user, v).CanView {
			out = append(out, v)
		}
	}
	return out
}

// Get returns the entity for id when present.
func (s *Store) Get(id string) (models.VideoEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	return v, ok
}

// Progress returns the latest displayed progress entry for id when present.
func (s *Store) Progress(id string) (models.ProgressEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.progress[id]
	return ev, ok
}

// Len reports the number of entities currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.videos)
}

// LastError returns the error state left by the most recent failed fetch,
// nil after a successful one.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Close cancels pending deferred re-fetches. The store remains readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, timer := range s.refetch {
		timer.Stop()
		delete(s.refetch, id)
	}
}

func merge(existing, incoming models.VideoEntity) models.VideoEntity {
	out := existing

	if incoming.Title != "" {
		out.Title = incoming.Title
	}
	if incoming.Description != "" {
		out.Description = incoming.Description
	}
	if incoming.OwnerID != "" {
		out.OwnerID = incoming.OwnerID
	}
	if incoming.OrganizationID != "" {
		out.OrganizationID = incoming.OrganizationID
	}
	if incoming.MimeType != "" {
		out.MimeType = incoming.MimeType
	}
	if incoming.FilePath != "" {
		out.FilePath = incoming.FilePath
	}
	if incoming.FileSizeBytes != 0 {
		out.FileSizeBytes = incoming.FileSizeBytes
	}
	if incoming.DurationSeconds != 0 {
		out.DurationSeconds = incoming.DurationSeconds
	}
	if !incoming.UploadedAt.IsZero() {
		out.UploadedAt = incoming.UploadedAt
	}

	if incoming.Status != "" && existing.Status.CanTransitionTo(incoming.Status) {
		out.Status = incoming.Status
	}
	if incoming.ProcessingProgress > existing.ProcessingProgress {
		out.ProcessingProgress = incoming.ProcessingProgress
	}
	if incoming.SensitivityStatus != "" && !existing.SensitivityStatus.Resolved() {
		out.SensitivityStatus = incoming.SensitivityStatus
	}
	if incoming.SensitivityScore != 0 {
		out.SensitivityScore = incoming.SensitivityScore
	}
	if incoming.SensitivityDetails != "" {
		out.SensitivityDetails = incoming.SensitivityDetails
	}

	out.IsPublic = incoming.IsPublic
	if incoming.SharedWith != nil {
		out.SharedWith = incoming.SharedWith
	}

	return out
}
