package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
	"github.com/listnote/listnote-core/internal/core/ports/driving"
)

// File topic naming and user data keys
const (
	fileTopicPrefix  = "files:"
	keyTreeChange    = "treechange"
	keyRename        = "rename|"
	userDataExpanded = "expanded"

	dailyFileLayout = "2006-01-02"

	dailyLockTTL   = 10 * time.Second
	dailyLockRetry = 50 * time.Millisecond
)

// FileTopicName returns the file topic of a project
func FileTopicName(projectID string) string {
	return fileTopicPrefix + projectID
}

// DailyFileTitle returns the journal document name for a day
func DailyFileTitle(date time.Time) string {
	return date.Format(dailyFileLayout)
}

// FileRename is a file name change, local or from another session
type FileRename struct {
	FileID string
	Name   string
}

// Verify interface compliance
var _ driving.FileService = (*FileService)(nil)

// FileService keeps the file tree of each loaded project and tells other
// sessions about tree changes through a per-project topic.
type FileService struct {
	store    driven.FileStore
	userData driven.UserDataStore
	topics   driven.TopicFactory
	lock     driven.DistributedLock
	errors   *ErrorSlot
	exec     Executor
	clock    clock.Clock
	logger   *slog.Logger

	mu         sync.Mutex
	files      map[string][]*domain.File // projectID -> files
	byID       map[string]*domain.File
	expanded   map[string]bool
	fileTopics map[string]driven.Topic

	renamed     Emitter[FileRename]
	treeChanged Emitter[string]
}

// FileServiceConfig holds dependencies for FileService.
type FileServiceConfig struct {
	Store    driven.FileStore
	UserData driven.UserDataStore
	Topics   driven.TopicFactory
	// Lock serializes journal creation across clients. Optional.
	Lock     driven.DistributedLock
	Errors   *ErrorSlot
	// Executor runs topic deliveries; nil runs them inline
	Executor Executor
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewFileService creates a file service
func NewFileService(cfg FileServiceConfig) *FileService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	errSlot := cfg.Errors
	if errSlot == nil {
		errSlot = NewErrorSlot()
	}

	return &FileService{
		store:      cfg.Store,
		userData:   cfg.UserData,
		topics:     cfg.Topics,
		lock:       cfg.Lock,
		errors:     errSlot,
		exec:       executorOrInline(cfg.Executor),
		clock:      c,
		logger:     logger,
		files:      make(map[string][]*domain.File),
		byID:       make(map[string]*domain.File),
		expanded:   make(map[string]bool),
		fileTopics: make(map[string]driven.Topic),
	}
}

// LoadFiles fetches the files of a project and opens its file topic
func (s *FileService) LoadFiles(ctx context.Context, project *domain.Project) ([]*domain.File, error) {
	files, err := s.store.ListFiles(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	for _, f := range files {
		if f.ProjectID == "" {
			f.ProjectID = project.ID
		}
	}

	s.logger.Info("loaded files", "project_id", project.ID, "count", len(files))
	s.updateFiles(project.ID, files)
	s.ensureTopic(ctx, project.ID)
	return s.Files(project.ID), nil
}

func (s *FileService) updateFiles(projectID string, files []*domain.File) {
	s.mu.Lock()
	s.files[projectID] = files
	for _, f := range files {
		s.byID[f.ID] = f
	}
	s.mu.Unlock()

	s.treeChanged.Emit(projectID)
}

// Loaded reports whether the files of a project were loaded
func (s *FileService) Loaded(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[projectID]
	return ok
}

// Files returns the project's files, folders first
func (s *FileService) Files(projectID string) []*domain.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyFiles(domain.SortFiles(s.files[projectID]))
}

// Tree returns the project's files nested under their folders
func (s *FileService) Tree(projectID string) []*domain.TreeFile {
	return domain.FileListToTree(s.Files(projectID))
}

// File returns a file by id from any loaded project
func (s *FileService) File(id string) (*domain.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	c := *f
	return &c, true
}

func copyFiles(files []*domain.File) []*domain.File {
	out := make([]*domain.File, len(files))
	for i, f := range files {
		c := *f
		out[i] = &c
	}
	return out
}

// NewFile creates a document or folder
func (s *FileService) NewFile(ctx context.Context, projectID, name string, typ domain.FileType, parent *string) (*domain.File, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is empty", domain.ErrInvalidInput)
	}

	file, err := s.create(ctx, projectID, name, typ, parent)
	if err != nil {
		return nil, err
	}
	s.addFile(projectID, file)
	s.broadcast(ctx, projectID, keyTreeChange, s.stamp())
	return file, nil
}

func (s *FileService) create(ctx context.Context, projectID, name string, typ domain.FileType, parent *string) (*domain.File, error) {
	attrs := domain.FileAttrs{Name: &name, Type: typ, ProjectID: &projectID}
	if parent != nil {
		attrs.Parent = domain.Some(*parent)
	}
	file, err := s.store.CreateFile(ctx, attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	if file.ProjectID == "" {
		file.ProjectID = projectID
	}
	return file, nil
}

func (s *FileService) addFile(projectID string, file *domain.File) {
	s.mu.Lock()
	files := append(append([]*domain.File(nil), s.files[projectID]...), file)
	s.mu.Unlock()
	s.updateFiles(projectID, files)
}

// NewDailyFile returns the journal document for a day, creating it and its
// year and month folders when missing
func (s *FileService) NewDailyFile(ctx context.Context, project *domain.Project, date time.Time) (string, error) {
	if project == nil {
		return "", domain.ErrNoCurrentProject
	}
	release, waited, err := s.lockDaily(ctx, project.ID, date)
	if err != nil {
		return "", err
	}
	defer release()

	// a client that waited may find the journal created by the lock holder
	if waited || !s.Loaded(project.ID) {
		if _, err := s.LoadFiles(ctx, project); err != nil {
			return "", err
		}
	}

	tree := s.Tree(project.ID)
	isFolder := func(name string) func(*domain.File) bool {
		return func(f *domain.File) bool { return f.IsFolder() && f.Name == name }
	}

	yearName := date.Format("2006")
	year := (&domain.TreeFile{Nodes: tree}).Find(isFolder(yearName))
	if year == nil {
		f, err := s.create(ctx, project.ID, yearName, domain.FileTypeFolder, nil)
		if err != nil {
			return "", err
		}
		s.addFile(project.ID, f)
		year = &domain.TreeFile{File: f}
	}

	monthName := date.Format("01")
	month := year.Find(isFolder(monthName))
	if month == nil {
		f, err := s.create(ctx, project.ID, monthName, domain.FileTypeFolder, &year.File.ID)
		if err != nil {
			return "", err
		}
		s.addFile(project.ID, f)
		month = &domain.TreeFile{File: f}
	}

	name := DailyFileTitle(date)
	if existing := month.Find(func(f *domain.File) bool { return f.Name == name }); existing != nil {
		return existing.File.ID, nil
	}

	f, err := s.create(ctx, project.ID, name, domain.FileTypeDoc, &month.File.ID)
	if err != nil {
		return "", err
	}
	s.addFile(project.ID, f)
	s.broadcast(ctx, project.ID, keyTreeChange, s.stamp())
	return f.ID, nil
}

// lockDaily takes the journal lock of a project day. Without a lock
// backend, or when the backend fails, creation goes ahead unlocked.
// When the lock stays taken for its whole TTL the holder is presumed gone.
func (s *FileService) lockDaily(ctx context.Context, projectID string, date time.Time) (release func(), waited bool, err error) {
	noop := func() {}
	if s.lock == nil {
		return noop, false, nil
	}

	name := "daily:" + projectID + ":" + DailyFileTitle(date)
	deadline := time.Now().Add(dailyLockTTL)
	for {
		ok, err := s.lock.Acquire(ctx, name, dailyLockTTL)
		if err != nil {
			s.logger.Warn("failed to lock journal, creating unlocked", "lock", name, "error", err)
			return noop, waited, nil
		}
		if ok {
			return func() {
				if err := s.lock.Release(context.WithoutCancel(ctx), name); err != nil {
					s.logger.Warn("failed to release journal lock", "lock", name, "error", err)
				}
			}, waited, nil
		}
		if time.Now().After(deadline) {
			s.logger.Warn("journal lock still held, creating anyway", "lock", name)
			return noop, true, nil
		}

		waited = true
		timer := time.NewTimer(dailyLockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, waited, ctx.Err()
		case <-timer.C:
		}
	}
}

// RenameFile renames a file locally at once, tells other sessions, then
// persists. A failed update lands in the error slot.
func (s *FileService) RenameFile(ctx context.Context, projectID, fileID, name string) error {
	s.applyRename(fileID, name)
	s.broadcast(ctx, projectID, keyRename+fileID, name)

	if _, err := s.store.UpdateFile(ctx, fileID, domain.FileAttrs{Name: &name}); err != nil {
		s.errors.Set(err)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

func (s *FileService) applyRename(fileID, name string) {
	s.mu.Lock()
	if f, ok := s.byID[fileID]; ok {
		f.Name = name
	}
	s.mu.Unlock()

	s.renamed.Emit(FileRename{FileID: fileID, Name: name})
}

// MoveFile puts a file under a new parent folder; nil moves it to the root
func (s *FileService) MoveFile(ctx context.Context, projectID, fileID string, parent *string) error {
	s.mu.Lock()
	f, ok := s.byID[fileID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	if f.ParentID() == deref(parent) {
		s.mu.Unlock()
		return nil
	}
	f.Parent = parent
	s.mu.Unlock()
	s.treeChanged.Emit(projectID)

	attrs := domain.FileAttrs{Parent: domain.Null[string]()}
	if parent != nil {
		attrs.Parent = domain.Some(*parent)
	}
	if _, err := s.store.UpdateFile(ctx, fileID, attrs); err != nil {
		s.errors.Set(err)
		return fmt.Errorf("failed to move file: %w", err)
	}
	s.broadcast(ctx, projectID, keyTreeChange, s.stamp())
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// DeleteFile soft-deletes or archives a file. Children of a folder move up
// to the folder's parent.
func (s *FileService) DeleteFile(ctx context.Context, projectID, fileID string, archive bool) error {
	file, ok := s.File(fileID)
	if !ok {
		return domain.ErrNotFound
	}

	if file.IsFolder() {
		for _, child := range s.Files(projectID) {
			if child.ParentID() != file.ID {
				continue
			}
			attrs := domain.FileAttrs{Parent: domain.Null[string]()}
			if file.Parent != nil {
				attrs.Parent = domain.Some(*file.Parent)
			}
			if _, err := s.store.UpdateFile(ctx, child.ID, attrs); err != nil {
				s.logger.Warn("failed to reparent file", "file_id", child.ID, "error", err)
			}
		}
	}

	now := s.clock.Now()
	var attrs domain.FileAttrs
	if archive {
		attrs.ArchivedAt = domain.Some(now)
	} else {
		attrs.DeletedAt = domain.Some(now)
	}
	if _, err := s.store.UpdateFile(ctx, fileID, attrs); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	s.broadcast(ctx, projectID, keyTreeChange, s.stamp())

	s.mu.Lock()
	var remaining []*domain.File
	for _, f := range s.files[projectID] {
		if f.ID == fileID {
			continue
		}
		if f.ParentID() == fileID {
			f.Parent = file.Parent
		}
		remaining = append(remaining, f)
	}
	delete(s.byID, fileID)
	s.mu.Unlock()
	s.updateFiles(projectID, remaining)
	return nil
}

// LoadExpanded reads which folders the user left expanded
func (s *FileService) LoadExpanded(ctx context.Context) (map[string]bool, error) {
	raw, err := s.userData.GetUserData(ctx, userDataExpanded)
	if errors.Is(err, domain.ErrNotFound) {
		return s.Expanded(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load expanded folders: %w", err)
	}

	var expanded map[string]bool
	if err := json.Unmarshal(raw, &expanded); err != nil {
		return nil, fmt.Errorf("failed to decode expanded folders: %w", err)
	}
	s.mu.Lock()
	s.expanded = expanded
	s.mu.Unlock()
	return s.Expanded(), nil
}

// SetExpanded records a folder's expansion. Only expanded folders are stored.
func (s *FileService) SetExpanded(ctx context.Context, key string, expanded bool) error {
	s.mu.Lock()
	if s.expanded[key] == expanded {
		s.mu.Unlock()
		return nil
	}
	s.expanded[key] = expanded
	data := make(map[string]bool)
	for k, v := range s.expanded {
		if v {
			data[k] = true
		}
	}
	s.mu.Unlock()

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := s.userData.SetUserData(ctx, userDataExpanded, raw); err != nil {
		return fmt.Errorf("failed to save expanded folders: %w", err)
	}
	return nil
}

// Expanded returns a copy of the folder expansion state
func (s *FileService) Expanded() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.expanded))
	for k, v := range s.expanded {
		out[k] = v
	}
	return out
}

// OnRename subscribes to file renames
func (s *FileService) OnRename(fn func(FileRename)) func() {
	return s.renamed.Subscribe(fn)
}

// OnTreeChange subscribes to file list changes of any project
func (s *FileService) OnTreeChange(fn func(projectID string)) func() {
	return s.treeChanged.Subscribe(fn)
}

func (s *FileService) stamp() string {
	return strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
}

func (s *FileService) ensureTopic(ctx context.Context, projectID string) {
	if s.topics == nil {
		return
	}

	s.mu.Lock()
	if _, ok := s.fileTopics[projectID]; ok {
		s.mu.Unlock()
		return
	}
	s.fileTopics[projectID] = nil
	s.mu.Unlock()

	topic, err := s.topics.Topic(ctx, FileTopicName(projectID))
	if err != nil {
		s.logger.Warn("failed to open file topic", "project_id", projectID, "error", err)
		s.mu.Lock()
		delete(s.fileTopics, projectID)
		s.mu.Unlock()
		return
	}
	project := &domain.Project{ID: projectID}
	topic.OnAllKeyChange(func(key, value string) {
		s.exec.Submit(func() { s.handleTopicKey(project, key, value) })
	})

	s.mu.Lock()
	s.fileTopics[projectID] = topic
	s.mu.Unlock()
}

func (s *FileService) handleTopicKey(project *domain.Project, key, value string) {
	switch {
	case key == keyTreeChange:
		if _, err := s.LoadFiles(context.Background(), project); err != nil {
			s.logger.Warn("failed to reload files", "project_id", project.ID, "error", err)
		}
	case strings.HasPrefix(key, keyRename):
		s.applyRename(strings.TrimPrefix(key, keyRename), value)
	}
}

func (s *FileService) broadcast(ctx context.Context, projectID, key, value string) {
	s.mu.Lock()
	topic := s.fileTopics[projectID]
	s.mu.Unlock()
	if topic == nil {
		return
	}
	if err := topic.SetSharedKey(ctx, key, value); err != nil {
		s.logger.Warn("failed to broadcast file change", "project_id", projectID, "key", key, "error", err)
	}
}

// Close releases the file topics
func (s *FileService) Close() error {
	s.mu.Lock()
	topics := s.fileTopics
	s.fileTopics = make(map[string]driven.Topic)
	s.mu.Unlock()

	for _, t := range topics {
		if t != nil {
			_ = t.Close()
		}
	}
	return nil
}
