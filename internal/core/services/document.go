package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
	"github.com/listnote/listnote-core/internal/editor"
)

// LastDocKey is the local marker holding the last document opened
const LastDocKey = "ld"

// DocumentService opens documents into the binding and tracks the title of
// the open document.
type DocumentService struct {
	binding  *Binding
	files    *FileService
	registry *TaskRegistry
	projects *ProjectContext
	local    driven.LocalStore
	logger   *slog.Logger

	mu    sync.Mutex
	docID string
	title string

	titleChanged Emitter[string]
}

// DocumentServiceConfig holds dependencies for DocumentService.
type DocumentServiceConfig struct {
	Binding  *Binding
	Files    *FileService
	Registry *TaskRegistry
	Projects *ProjectContext
	Local    driven.LocalStore
	Logger   *slog.Logger
}

// NewDocumentService creates a document service
func NewDocumentService(cfg DocumentServiceConfig) *DocumentService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	projects := cfg.Projects
	if projects == nil {
		projects = NewProjectContext()
	}

	d := &DocumentService{
		binding:  cfg.Binding,
		files:    cfg.Files,
		registry: cfg.Registry,
		projects: projects,
		local:    cfg.Local,
		logger:   logger,
	}
	if d.files != nil {
		d.files.OnRename(func(r FileRename) {
			d.titleFor(r.FileID, r.Name)
		})
		d.files.OnTreeChange(func(string) {
			if f, ok := d.files.File(d.DocumentID()); ok {
				d.titleFor(f.ID, f.Name)
			}
		})
	}
	return d
}

// Load makes project current and binds one of its documents.
// The last-document marker follows the outcome.
func (d *DocumentService) Load(ctx context.Context, project *domain.Project, docID string) (*Session, error) {
	if project == nil {
		return nil, domain.ErrNoCurrentProject
	}
	d.projects.SetCurrent(project)

	d.mu.Lock()
	d.docID = docID
	d.title = ""
	d.mu.Unlock()
	if d.files != nil {
		if f, ok := d.files.File(docID); ok {
			d.titleFor(docID, f.Name)
		}
	}

	ref := domain.DocRef{ProjectID: project.ID, DocumentID: docID}
	s, err := d.binding.Open(ctx, ref)
	if errIsSuperseded(err) {
		return nil, err
	}
	if err != nil {
		if derr := d.local.Delete(ctx, LastDocKey); derr != nil {
			d.logger.Warn("failed to clear last document", "error", derr)
		}
		return nil, err
	}
	if err := d.local.Set(ctx, LastDocKey, ref.Path()); err != nil {
		d.logger.Warn("failed to remember last document", "error", err)
	}
	return s, nil
}

// LastDoc returns the document opened last on this device
func (d *DocumentService) LastDoc(ctx context.Context) (domain.DocRef, bool) {
	path, err := d.local.Get(ctx, LastDocKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("failed to read last document", "error", err)
		}
		return domain.DocRef{}, false
	}
	return domain.ParseDocRef(path)
}

// Close unbinds the open document
func (d *DocumentService) Close(ctx context.Context) {
	d.binding.Unbind(ctx)
	d.mu.Lock()
	d.docID = ""
	d.title = ""
	d.mu.Unlock()
}

// DocumentID returns the id of the document last requested
func (d *DocumentService) DocumentID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.docID
}

// Title returns the open document's name from the file tree
func (d *DocumentService) Title() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title
}

// OnTitleChange subscribes to title changes of the open document
func (d *DocumentService) OnTitleChange(fn func(string)) func() {
	return d.titleChanged.Subscribe(fn)
}

func (d *DocumentService) titleFor(fileID, name string) {
	d.mu.Lock()
	if fileID != d.docID || d.title == name {
		d.mu.Unlock()
		return
	}
	d.title = name
	d.mu.Unlock()

	d.titleChanged.Emit(name)
}

// RemoveCompletedTasks strips task nodes of completed tasks from the document
func (d *DocumentService) RemoveCompletedTasks(s *Session) (int, error) {
	return deleteBlocks(s, func(b editor.Block) bool {
		if b.Type != TaskNodeName {
			return false
		}
		id := b.Attr("id")
		if id == "" {
			return false
		}
		task, ok := d.registry.Task(id)
		return ok && task.IsCompleted()
	})
}

// metaSystemEdit marks local transactions the client makes on its own
// rather than in response to user input
const metaSystemEdit = "systemEdit"

// deleteBlocks removes every matching block in one local transaction.
// A document left with no blocks gets an empty paragraph.
func deleteBlocks(s *Session, match func(editor.Block) bool) (int, error) {
	if s == nil || s.Closed() {
		return 0, domain.ErrNotBound
	}
	ed := s.Editor()
	tr := ed.Tr()
	doc := tr.Doc()

	removed := 0
	for i := len(doc) - 1; i >= 0; i-- {
		if match(doc[i]) {
			tr.Delete(i, i+1)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if len(tr.Doc()) == 0 {
		tr.Insert(0, ed.Schema().Paragraph(""))
	}
	if err := ed.Dispatch(tr.SetMeta(metaSystemEdit, true)); err != nil {
		return 0, err
	}
	return removed, nil
}
