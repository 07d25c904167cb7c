// coordinator.go commits ready tasks to disk and reverses committed renames.
//
// Every rename and undo runs under one mutex, one at a time, so two renames
// into the same folder can never race each other's collision check.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Coordinator confirms tasks and undoes renames.
type Coordinator struct {
	store   *TaskStore
	mover   Mover
	history HistoryService
	recent  *RecentActivity
	broker  *Broker
	log     *slog.Logger

	mu sync.Mutex // serializes renames and undos
}

// NewCoordinator creates a coordinator.
func NewCoordinator(store *TaskStore, mover Mover, history HistoryService, recent *RecentActivity, broker *Broker, log *slog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		mover:   mover,
		history: history,
		recent:  recent,
		broker:  broker,
		log:     log.With("component", "coordinator"),
	}
}

// LoadRecent fills the recent-activity list from persisted history.
func (c *Coordinator) LoadRecent(ctx context.Context) error {
	entries, err := c.history.ListHistory(ctx, MaxHistoryEntries)
	if err != nil {
		return err
	}
	c.recent.Load(entries)
	return nil
}

// ConfirmOne renames one ready task. The returned result describes the
// outcome; err is non-nil when the task could not be confirmed or the rename
// failed.
func (c *Coordinator) ConfirmOne(ctx context.Context, id string) (ConfirmResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirm(ctx, id)
}

// ConfirmAll renames every ready task with a name, one after another in
// store order. A failure on one task does not stop the others. Stops early,
// leaving the rest ready, if ctx is cancelled.
func (c *Coordinator) ConfirmAll(ctx context.Context) []ConfirmResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for _, t := range c.store.Snapshot().Tasks() {
		if t.Status == StatusReady && t.CandidateName != "" {
			ids = append(ids, t.ID)
		}
	}

	results := make([]ConfirmResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		res, err := c.confirm(ctx, id)
		if err != nil && res.TaskID == "" {
			// Dismissed or edited since the batch started.
			res = ConfirmResult{TaskID: id, Error: FriendlyMessage(err)}
		}
		results = append(results, res)
	}
	c.log.Info("confirm all finished", "requested", len(ids), "processed", len(results))
	return results
}

// confirm runs one rename. Caller holds c.mu.
func (c *Coordinator) confirm(ctx context.Context, id string) (ConfirmResult, error) {
	task, err := c.begin(id)
	if err != nil {
		return ConfirmResult{}, err
	}
	res := ConfirmResult{TaskID: id}

	// The category subfolder was chosen at enqueue and may since have been
	// replaced by the user, so the mover must not add it again.
	newPath, err := c.mover.MoveAndRename(ctx, task.SourcePath, task.DestinationFolder, task.TargetName(), false)
	if err != nil {
		msg := FriendlyMessage(err)
		c.log.Warn("rename failed", "task_id", id, "file", task.OriginalName, "error", err)
		if _, ferr := c.store.Fail(id, msg); ferr != nil && !errors.Is(ferr, ErrTaskNotFound) {
			c.log.Warn("write-back rejected", "error", ferr)
		}
		c.toast(Toast{Level: ToastError, Message: fmt.Sprintf("Could not rename %s: %s", task.OriginalName, msg)})
		res.Status = string(StatusError)
		res.Error = msg
		return res, err
	}

	entry := newHistoryEntry(task, newPath, time.Now())
	res.NewPath = newPath
	res.Status = string(StatusDone)
	if _, err := c.store.Transition(id, StatusDone, nil); err != nil && !errors.Is(err, ErrTaskNotFound) {
		c.log.Warn("write-back rejected", "error", err)
	}

	// The file has moved: the record that makes it undoable must be written
	// even if the caller has gone away.
	if err := c.history.AppendHistory(context.WithoutCancel(ctx), entry); err != nil {
		msg := FriendlyMessage(err)
		c.log.Error("history append failed", "task_id", id, "new_path", newPath, "error", err)
		c.toast(Toast{Level: ToastError, Message: fmt.Sprintf("Renamed to %s, but it cannot be undone: %s", entry.NewName, msg)})
		res.Error = msg
		return res, nil
	}

	c.recent.Prepend(entry)
	res.HistoryID = entry.ID
	c.log.Info("renamed", "task_id", id, "from", task.SourcePath, "to", newPath, "history_id", entry.ID)
	c.toast(Toast{Level: ToastSuccess, Message: "Renamed to " + entry.NewName, UndoID: entry.ID})
	return res, nil
}

// begin moves id from ready to confirming, checking it has a name, in one
// store update.
func (c *Coordinator) begin(id string) (Task, error) {
	var task Task
	var err error
	c.store.Update(func(tasks []Task) ([]Task, bool) {
		for i := range tasks {
			if tasks[i].ID != id {
				continue
			}
			t := &tasks[i]
			switch {
			case t.Status != StatusReady:
				err = ValidationError(ReasonNotReady, fmt.Sprintf("task %s is %s, not ready", id, t.Status), nil)
				return tasks, false
			case t.CandidateName == "":
				err = ValidationError(ReasonNotReady, "task "+id+" has no name", nil)
				return tasks, false
			}
			applyTransition(t, StatusConfirming, time.Now())
			task = *t
			return tasks, true
		}
		err = taskNotFound(id)
		return tasks, false
	})
	return task, err
}

// Undo reverses a committed rename. On success the entry leaves the recent
// activity list; on failure it stays.
func (c *Coordinator) Undo(ctx context.Context, historyID string) (HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, err := c.history.UndoRename(ctx, historyID)
	if err != nil {
		c.log.Warn("undo failed", "history_id", historyID, "error", err)
		c.toast(Toast{Level: ToastError, Message: "Undo failed: " + FriendlyMessage(err)})
		return HistoryEntry{}, err
	}
	c.recent.Remove(historyID)
	c.log.Info("undone", "history_id", historyID, "restored", entry.OriginalPath)
	c.toast(Toast{Level: ToastInfo, Message: "Restored " + filepath.Base(entry.OriginalPath)})
	return entry, nil
}

// Recent returns the recent-activity list, newest first.
func (c *Coordinator) Recent() []HistoryEntry { return c.recent.List() }

func (c *Coordinator) toast(t Toast) {
	if c.broker != nil {
		c.broker.PublishToast(t)
	}
}
