// collaborators.go declares the narrow interfaces the pipeline core consumes.
// Default implementations live in extract.go, namer_*.go, mover.go and
// history_store.go; tests swap in fakes.
package main

import "context"

// Extractor pulls text out of a file for the naming service. Failures are
// ExtractionErrors.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NamingOptions carries user preferences into prompt construction.
type NamingOptions struct {
	Style       string // kebab-case, camelCase, PascalCase, snake_case, Train-Case, chinese
	IncludeDate bool
	Template    string // e.g. "{type}-{title}-{date}"; empty means free form
	CustomRules string
}

// NameRequest is the input to a naming service.
type NameRequest struct {
	Text    string // extracted content, may be a metadata summary
	Path    string // source file, for context and vision input
	Options NamingOptions
}

// Namer proposes a file name stem. Failures are GenerationErrors.
type Namer interface {
	GenerateName(ctx context.Context, req NameRequest) (string, error)
}

// ModelLister is implemented by naming services that can enumerate their
// models and check connectivity.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
	TestConnection(ctx context.Context) error
}

// Mover moves src into destFolder under fullName and returns the final path.
// When autoCategorize is set the mover may place the file in a category
// subfolder. Failures are FileSystemErrors.
type Mover interface {
	MoveAndRename(ctx context.Context, src, destFolder, fullName string, autoCategorize bool) (string, error)
}

// HistoryService persists committed renames and reverses them. Failures are
// HistoryErrors.
type HistoryService interface {
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	// UndoRename moves the file back and deletes the entry, returning it.
	UndoRename(ctx context.Context, id string) (HistoryEntry, error)
	// ListHistory returns up to limit entries, newest first.
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// FolderPicker asks the user for a destination folder. ok is false when the
// user cancelled.
type FolderPicker interface {
	PickDestinationFolder(ctx context.Context) (folder string, ok bool, err error)
}

// FixedFolder is a FolderPicker that always answers with the same folder,
// used when the folder arrives in the request itself (MCP, HTTP).
type FixedFolder string

func (f FixedFolder) PickDestinationFolder(context.Context) (string, bool, error) {
	return string(f), f != "", nil
}
