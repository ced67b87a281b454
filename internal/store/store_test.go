package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vidstream/client/internal/api"
	"github.com/vidstream/client/internal/models"
)

type stubFetcher struct {
	mu     sync.Mutex
	videos []models.VideoEntity
	err    error
	calls  int
}

func (f *stubFetcher) ListVideos(context.Context, api.Filters) ([]models.VideoEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func processingVideo(id string) models.VideoEntity {
	return models.VideoEntity{
		ID:                 id,
		Title:              "Video " + id,
		OwnerID:            "owner-1",
		Status:             models.StatusProcessing,
		SensitivityStatus:  models.SensitivityPending,
		ProcessingProgress: 0,
	}
}

func TestFetchAllReplacesCollection(t *testing.T) {
	fetcher := &stubFetcher{videos: []models.VideoEntity{processingVideo("a"), processingVideo("b")}}
	s := New(fetcher, time.Second, nil)
	defer s.Close()

	s.Upsert(processingVideo("old"))

	if err := s.FetchAll(context.Background(), api.Filters{}); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected snapshot replacement got %d entities", s.Len())
	}
	if _, ok := s.Get("old"); ok {
		t.Fatal("stale entity survived refresh")
	}
	if s.LastError() != nil {
		t.Fatalf("unexpected error state: %v", s.LastError())
	}
}

func TestFetchAllFailureLeavesStateUntouched(t *testing.T) {
	fetcher := &stubFetcher{videos: []models.VideoEntity{processingVideo("a")}}
	s := New(fetcher, time.Second, nil)
	defer s.Close()

	if err := s.FetchAll(context.Background(), api.Filters{}); err != nil {
		t.Fatalf("fetch all: %v", err)
	}

	boom := errors.New("backend down")
	fetcher.mu.Lock()
	fetcher.err = boom
	fetcher.mu.Unlock()

	if err := s.FetchAll(context.Background(), api.Filters{}); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error got %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("prior collection should survive a failed fetch, len=%d", s.Len())
	}
	if !errors.Is(s.LastError(), boom) {
		t.Fatalf("expected retained error state got %v", s.LastError())
	}
}

func TestUpsertIdempotentAndPartial(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	original := processingVideo("a")
	original.Description = "keep me"
	original.SharedWith = []models.UserRef{{ID: "user-2"}}
	s.Upsert(original)

	// Partial payload: omits description and share list.
	partial := models.VideoEntity{ID: "a", Title: "Renamed", Status: models.StatusProcessing}
	s.Upsert(partial)
	s.Upsert(partial)

	got, ok := s.Get("a")
	if !ok {
		t.Fatal("entity missing")
	}
	if got.Title != "Renamed" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Description != "keep me" {
		t.Fatalf("omitted field discarded: %q", got.Description)
	}
	if len(got.SharedWith) != 1 {
		t.Fatalf("share list discarded: %+v", got.SharedWith)
	}
	if s.Len() != 1 {
		t.Fatalf("upsert appended instead of replacing, len=%d", s.Len())
	}
}

func TestUpsertNeverMovesStatusBackward(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	video := processingVideo("a")
	video.Status = models.StatusCompleted
	video.ProcessingProgress = 100
	s.Upsert(video)

	regress := models.VideoEntity{ID: "a", Status: models.StatusProcessing, ProcessingProgress: 40}
	s.Upsert(regress)

	got, _ := s.Get("a")
	if got.Status != models.StatusCompleted {
		t.Fatalf("status regressed to %q", got.Status)
	}
	if got.ProcessingProgress != 100 {
		t.Fatalf("progress regressed to %v", got.ProcessingProgress)
	}
}

func TestApplyProgressEventConvergence(t *testing.T) {
	fetcher := &stubFetcher{videos: []models.VideoEntity{processingVideo("a")}}
	s := New(fetcher, 20*time.Millisecond, nil)
	defer s.Close()

	if err := s.FetchAll(context.Background(), api.Filters{}); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	baseline := fetcher.callCount()

	events := []models.ProgressEvent{
		{VideoID: "a", Progress: 10, Status: models.StatusProcessing},
		{VideoID: "a", Progress: 45, Status: models.StatusProcessing},
		{VideoID: "a", Progress: 30, Status: models.StatusProcessing}, // stale
		{VideoID: "a", Progress: 100, Status: models.StatusCompleted},
	}
	for _, ev := range events {
		s.ApplyProgressEvent(ev)
	}

	got, _ := s.Get("a")
	if got.ProcessingProgress != 100 || got.Status != models.StatusCompleted {
		t.Fatalf("final state progress=%v status=%q", got.ProcessingProgress, got.Status)
	}

	entry, ok := s.Progress("a")
	if !ok || entry.Progress != 100 {
		t.Fatalf("progress map entry: %+v ok=%v", entry, ok)
	}

	// Exactly one debounced re-fetch for the completion.
	deadline := time.After(500 * time.Millisecond)
	for fetcher.callCount() == baseline {
		select {
		case <-deadline:
			t.Fatal("deferred re-fetch never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(60 * time.Millisecond)
	if n := fetcher.callCount(); n != baseline+1 {
		t.Fatalf("expected exactly one re-fetch got %d", n-baseline)
	}
}

func TestApplyProgressEventStaleDiscarded(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	video := processingVideo("a")
	video.ProcessingProgress = 45
	s.Upsert(video)

	s.ApplyProgressEvent(models.ProgressEvent{VideoID: "a", Progress: 30, Status: models.StatusProcessing})

	got, _ := s.Get("a")
	if got.ProcessingProgress != 45 {
		t.Fatalf("stale event applied, progress=%v", got.ProcessingProgress)
	}
	if _, ok := s.Progress("a"); ok {
		t.Fatal("stale event must not be recorded for display")
	}
}

func TestApplyProgressEventUnknownIDDropped(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	s.ApplyProgressEvent(models.ProgressEvent{VideoID: "ghost", Progress: 50})

	if s.Len() != 0 {
		t.Fatal("event for unknown id must not create an entity")
	}
	if _, ok := s.Progress("ghost"); ok {
		t.Fatal("event for unknown id must not be recorded")
	}
}

func TestCompletionDebounceCollapsesRepeats(t *testing.T) {
	fetcher := &stubFetcher{videos: []models.VideoEntity{processingVideo("a")}}
	s := New(fetcher, 30*time.Millisecond, nil)
	defer s.Close()

	if err := s.FetchAll(context.Background(), api.Filters{}); err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	baseline := fetcher.callCount()

	for i := 0; i < 3; i++ {
		s.ApplyProgressEvent(models.ProgressEvent{VideoID: "a", Progress: 100, Status: models.StatusCompleted})
	}

	time.Sleep(150 * time.Millisecond)
	if n := fetcher.callCount(); n != baseline+1 {
		t.Fatalf("expected one collapsed re-fetch got %d", n-baseline)
	}
}

func TestRecordFailure(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	s.Upsert(processingVideo("a"))
	s.RecordFailure("a", "transcode crashed")

	entry, ok := s.Progress("a")
	if !ok {
		t.Fatal("expected synthetic progress entry")
	}
	if entry.Status != models.StatusFailed || entry.Message != "transcode crashed" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestRemove(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	s.Upsert(processingVideo("a"))
	s.ApplyProgressEvent(models.ProgressEvent{VideoID: "a", Progress: 10, Status: models.StatusProcessing})

	s.Remove("a")
	if _, ok := s.Get("a"); ok {
		t.Fatal("entity still present")
	}
	if _, ok := s.Progress("a"); ok {
		t.Fatal("progress bookkeeping still present")
	}
	if len(s.Videos()) != 0 {
		t.Fatal("listing still contains removed entity")
	}

	s.Remove("a") // safe to repeat
}

func TestSubscribeNotifications(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	var mu sync.Mutex
	count := 0
	off := s.Subscribe(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	s.Upsert(processingVideo("a"))
	s.Remove("a")
	off()
	s.Upsert(processingVideo("b"))

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Fatalf("expected 2 notifications got %d", count)
	}
}

func TestVisibleTo(t *testing.T) {
	s := New(&stubFetcher{}, time.Second, nil)
	defer s.Close()

	private := processingVideo("private")
	private.OrganizationID = "org-1"
	public := processingVideo("public")
	public.OrganizationID = "org-1"
	public.IsPublic = true
	s.Upsert(private)
	s.Upsert(public)

	member := models.User{ID: "user-2", Role: models.RoleViewer, OrganizationID: "org-1"}
	visible := s.VisibleTo(member)
	if len(visible) != 1 || visible[0].ID != "public" {
		t.Fatalf("unexpected visible set: %+v", visible)
	}
}
