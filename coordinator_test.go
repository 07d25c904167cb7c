package main

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func newTestCoordinator(store *TaskStore, mover Mover, history HistoryService) (*Coordinator, *Broker) {
	broker := NewBroker(64)
	c := NewCoordinator(store, mover, history, NewRecentActivity(10), broker, testLogger())
	return c, broker
}

func readyTask(id, name string) Task {
	t := makeTask(id, StatusReady)
	t.CandidateName = name
	return t
}

// nextToast returns the next toast event or fails.
func nextToast(t *testing.T, events <-chan Event) Toast {
	t.Helper()
	select {
	case ev := <-events:
		return *ev.Toast
	case <-time.After(time.Second):
		t.Fatal("no toast published")
	}
	return Toast{}
}

// ---------------------------------------------------------------------------
// ConfirmOne
// ---------------------------------------------------------------------------

func TestConfirmOneSuccess(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("t1", "invoice-acme"))
	mover, history := newFakeMover(), &fakeHistory{}
	c, broker := newTestCoordinator(store, mover, history)
	toasts := broker.Subscribe(EventToast)

	res, err := c.ConfirmOne(context.Background(), "t1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if statusOf(store, "t1") != StatusDone {
		t.Fatalf("status = %s, want done", statusOf(store, "t1"))
	}
	if got := mover.callOrder(); len(got) != 1 || got[0] != "invoice-acme.pdf" {
		t.Fatalf("mover calls = %v", got)
	}
	if res.NewPath != "/out/invoice-acme.pdf" || res.HistoryID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	entries, _ := history.ListHistory(context.Background(), 10)
	if len(entries) != 1 || entries[0].ID != res.HistoryID || entries[0].TaskID != "t1" {
		t.Fatalf("history = %+v", entries)
	}
	if entries[0].OriginalPath != "/in/t1.pdf" || entries[0].NewName != "invoice-acme.pdf" {
		t.Fatalf("history entry paths wrong: %+v", entries[0])
	}
	if recent := c.Recent(); len(recent) != 1 || recent[0].ID != res.HistoryID {
		t.Fatalf("recent = %+v", recent)
	}

	toast := nextToast(t, toasts)
	if toast.Level != ToastSuccess || toast.UndoID != res.HistoryID {
		t.Fatalf("toast = %+v", toast)
	}
	if toast.Duration != DefaultToastDuration {
		t.Fatalf("toast duration = %v", toast.Duration)
	}
}

func TestConfirmOneRequiresReadyWithName(t *testing.T) {
	store := NewTaskStore()
	store.Add(makeTask("q", StatusQueued), readyTask("blank", ""))
	mover := newFakeMover()
	c, _ := newTestCoordinator(store, mover, &fakeHistory{})
	v := store.Snapshot().Version

	if _, err := c.ConfirmOne(context.Background(), "q"); ReasonOf(err) != ReasonNotReady {
		t.Fatalf("expected not_ready for queued task, got %v", err)
	}
	if _, err := c.ConfirmOne(context.Background(), "blank"); ReasonOf(err) != ReasonNotReady {
		t.Fatalf("expected not_ready for unnamed task, got %v", err)
	}
	if _, err := c.ConfirmOne(context.Background(), "nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if len(mover.callOrder()) != 0 {
		t.Fatal("mover should not be called")
	}
	if store.Snapshot().Version != v {
		t.Fatal("rejected confirms changed the store")
	}
}

func TestConfirmOneMoveFailure(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("t1", "taken"))
	mover, history := newFakeMover(), &fakeHistory{}
	mover.fail["taken.pdf"] = FileSystemError(ReasonDestinationExists, "taken.pdf", nil)
	c, broker := newTestCoordinator(store, mover, history)
	toasts := broker.Subscribe(EventToast)

	res, err := c.ConfirmOne(context.Background(), "t1")
	if ReasonOf(err) != ReasonDestinationExists {
		t.Fatalf("expected destination_exists, got %v", err)
	}
	task, ok := store.Snapshot().Get("t1")
	if !ok {
		t.Fatal("failed task must stay in the store")
	}
	if task.Status != StatusError || task.Error != reasonMessages[ReasonDestinationExists] {
		t.Fatalf("task = %+v", task)
	}
	if res.Status != string(StatusError) || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}
	if history.len() != 0 || len(c.Recent()) != 0 {
		t.Fatal("failed rename must not be recorded")
	}
	if toast := nextToast(t, toasts); toast.Level != ToastError || toast.UndoID != "" {
		t.Fatalf("toast = %+v", toast)
	}
}

func TestConfirmOneHistoryFailureStillDone(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("t1", "report"))
	history := &fakeHistory{appendErr: HistoryError(ReasonStorage, "append", errBoom)}
	c, broker := newTestCoordinator(store, newFakeMover(), history)
	toasts := broker.Subscribe(EventToast)

	res, err := c.ConfirmOne(context.Background(), "t1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if statusOf(store, "t1") != StatusDone {
		t.Fatal("file was moved, task should be done")
	}
	if res.HistoryID != "" || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}
	if len(c.Recent()) != 0 {
		t.Fatal("unsaved rename must not appear in recent activity")
	}
	if toast := nextToast(t, toasts); toast.Level != ToastError || toast.UndoID != "" {
		t.Fatalf("toast = %+v", toast)
	}
}

// cancelOnMove cancels the caller's context once the file has moved, as a
// client disconnecting mid-confirm would.
type cancelOnMove struct {
	Mover
	cancel context.CancelFunc
}

func (m cancelOnMove) MoveAndRename(ctx context.Context, src, dest, fullName string, autoCategorize bool) (string, error) {
	p, err := m.Mover.MoveAndRename(ctx, src, dest, fullName, autoCategorize)
	m.cancel()
	return p, err
}

func TestConfirmOneRecordsHistoryAfterCallerCancels(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("t1", "invoice"))
	history := openTestHistory(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestCoordinator(store, cancelOnMove{Mover: newFakeMover(), cancel: cancel}, history)

	res, err := c.ConfirmOne(ctx, "t1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.HistoryID == "" || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
	entries, err := history.ListHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != res.HistoryID {
		t.Fatalf("rename must stay undoable, history = %+v", entries)
	}
}

// categoryMover records the autoCategorize flag it was called with.
type categoryMover struct {
	*fakeMover
	flags []bool
}

func (m *categoryMover) MoveAndRename(ctx context.Context, src, dest, fullName string, autoCategorize bool) (string, error) {
	m.flags = append(m.flags, autoCategorize)
	return m.fakeMover.MoveAndRename(ctx, src, dest, fullName, autoCategorize)
}

func TestConfirmMovesIntoTaskDestinationAsIs(t *testing.T) {
	store := NewTaskStore()
	task := readyTask("t1", "invoice")
	task.DestinationFolder = "/chosen"
	store.Add(task)
	mover := &categoryMover{fakeMover: newFakeMover()}
	c, _ := newTestCoordinator(store, mover, &fakeHistory{})

	res, err := c.ConfirmOne(context.Background(), "t1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if res.NewPath != "/chosen/invoice.pdf" {
		t.Fatalf("new path = %q", res.NewPath)
	}
	if len(mover.flags) != 1 || mover.flags[0] {
		t.Fatalf("mover must not categorize again, flags = %v", mover.flags)
	}
}

// ---------------------------------------------------------------------------
// ConfirmAll
// ---------------------------------------------------------------------------

func TestConfirmAllIsSequentialInStoreOrder(t *testing.T) {
	store := NewTaskStore()
	store.Add(
		readyTask("a", "same"),
		makeTask("q", StatusQueued),
		readyTask("b", "same"),
		readyTask("blank", ""),
		readyTask("c", "same-1"),
	)
	mover := newFakeMover()
	c, _ := newTestCoordinator(store, mover, &fakeHistory{})

	results := c.ConfirmAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	ids := []string{results[0].TaskID, results[1].TaskID, results[2].TaskID}
	if !slices.Equal(ids, []string{"a", "b", "c"}) {
		t.Fatalf("result order = %v", ids)
	}
	if got := mover.callOrder(); !slices.Equal(got, []string{"same.pdf", "same.pdf", "same-1.pdf"}) {
		t.Fatalf("mover call order = %v", got)
	}
	if mover.maxSeen.Load() != 1 {
		t.Fatalf("renames overlapped: max %d in flight", mover.maxSeen.Load())
	}
	if statusOf(store, "q") != StatusQueued || statusOf(store, "blank") != StatusReady {
		t.Fatal("tasks that are not confirmable must be left alone")
	}
}

func TestConfirmAllIsolatesFailures(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("a", "one"), readyTask("b", "two"), readyTask("c", "three"))
	mover := newFakeMover()
	mover.fail["two.pdf"] = FileSystemError(ReasonPermission, "two.pdf", nil)
	c, _ := newTestCoordinator(store, mover, &fakeHistory{})

	results := c.ConfirmAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if statusOf(store, "a") != StatusDone || statusOf(store, "b") != StatusError || statusOf(store, "c") != StatusDone {
		t.Fatalf("unexpected statuses: a=%s b=%s c=%s", statusOf(store, "a"), statusOf(store, "b"), statusOf(store, "c"))
	}
	if results[1].Error != reasonMessages[ReasonPermission] {
		t.Fatalf("result b = %+v", results[1])
	}
}

func TestConcurrentConfirmsNeverOverlap(t *testing.T) {
	store := NewTaskStore()
	var ids []string
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		ids = append(ids, id)
		store.Add(readyTask(id, "file-"+id))
	}
	mover := newFakeMover()
	mover.delay = time.Millisecond
	c, _ := newTestCoordinator(store, mover, &fakeHistory{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.ConfirmAll(context.Background())
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			c.ConfirmOne(context.Background(), id)
		}
	}()
	wg.Wait()

	if mover.maxSeen.Load() != 1 {
		t.Fatalf("renames overlapped: max %d in flight", mover.maxSeen.Load())
	}
	if n := len(mover.callOrder()); n != 12 {
		t.Fatalf("each task should be renamed exactly once, got %d calls", n)
	}
	if store.Snapshot().Summary().Done != 12 {
		t.Fatalf("summary = %+v", store.Snapshot().Summary())
	}
}

func TestConfirmAllStopsOnCancelledContext(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("a", "one"), readyTask("b", "two"))
	mover := newFakeMover()
	c, _ := newTestCoordinator(store, mover, &fakeHistory{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if results := c.ConfirmAll(ctx); len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
	if store.Snapshot().Summary().Ready != 2 {
		t.Fatal("tasks should stay ready")
	}
}

// ---------------------------------------------------------------------------
// Undo
// ---------------------------------------------------------------------------

func TestUndoRemovesFromRecent(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("t1", "renamed"))
	history := &fakeHistory{}
	c, broker := newTestCoordinator(store, newFakeMover(), history)

	res, err := c.ConfirmOne(context.Background(), "t1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	toasts := broker.Subscribe(EventToast)

	entry, err := c.Undo(context.Background(), res.HistoryID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if entry.OriginalPath != "/in/t1.pdf" {
		t.Fatalf("entry = %+v", entry)
	}
	if len(c.Recent()) != 0 || history.len() != 0 {
		t.Fatal("undone entry should be gone")
	}
	if toast := nextToast(t, toasts); toast.Level != ToastInfo {
		t.Fatalf("toast = %+v", toast)
	}
}

func TestUndoFailureKeepsEntry(t *testing.T) {
	store := NewTaskStore()
	store.Add(readyTask("t1", "renamed"))
	history := &fakeHistory{}
	c, broker := newTestCoordinator(store, newFakeMover(), history)

	res, _ := c.ConfirmOne(context.Background(), "t1")
	history.undoErr = FileSystemError(ReasonDestinationExists, "original path is taken", nil)
	toasts := broker.Subscribe(EventToast)

	if _, err := c.Undo(context.Background(), res.HistoryID); err == nil {
		t.Fatal("expected undo error")
	}
	if _, ok := c.recent.Get(res.HistoryID); !ok {
		t.Fatal("failed undo must leave the entry in recent activity")
	}
	toast := nextToast(t, toasts)
	if toast.Level != ToastError || toast.Message != "Undo failed: "+reasonMessages[ReasonDestinationExists] {
		t.Fatalf("toast = %+v", toast)
	}
}

func TestLoadRecent(t *testing.T) {
	history := &fakeHistory{}
	for _, id := range []string{"h1", "h2", "h3"} {
		history.AppendHistory(context.Background(), HistoryEntry{ID: id})
	}
	c, _ := newTestCoordinator(NewTaskStore(), newFakeMover(), history)
	if err := c.LoadRecent(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	recent := c.Recent()
	if len(recent) != 3 || recent[0].ID != "h3" {
		t.Fatalf("recent = %+v", recent)
	}
}
