package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// FileType distinguishes documents from folders in the file tree
type FileType string

const (
	FileTypeDoc    FileType = "doc"
	FileTypeFolder FileType = "folder"
)

// File is an entry in a project's file tree
type File struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"project_id,omitempty"`
	Name       string     `json:"name"`
	Type       FileType   `json:"type"`
	Parent     *string    `json:"parent"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// ParentID returns the parent folder id, or "" at the root
func (f *File) ParentID() string {
	if f.Parent == nil {
		return ""
	}
	return *f.Parent
}

// IsFolder reports whether the file is a folder
func (f *File) IsFolder() bool {
	return f.Type == FileTypeFolder
}

// Apply returns a copy of the file with the attributes merged in.
// The project of an existing file never changes.
func (f *File) Apply(a FileAttrs) *File {
	c := *f
	if a.Name != nil {
		c.Name = *a.Name
	}
	if a.Type != "" {
		c.Type = a.Type
	}
	if a.Parent.Set {
		c.Parent = clonePtr(a.Parent.Value)
	}
	if a.ArchivedAt.Set {
		c.ArchivedAt = cloneTime(a.ArchivedAt.Value)
	}
	if a.DeletedAt.Set {
		c.DeletedAt = cloneTime(a.DeletedAt.Value)
	}
	return &c
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// FileAttrs is a partial set of file attributes for create and update calls
type FileAttrs struct {
	Name       *string
	Type       FileType
	Parent     Nullable[string]
	ProjectID  *string
	ArchivedAt Nullable[time.Time]
	DeletedAt  Nullable[time.Time]
}

// MarshalJSON encodes only the attributes that are set
func (a FileAttrs) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if a.Name != nil {
		m["name"] = *a.Name
	}
	if a.Type != "" {
		m["type"] = a.Type
	}
	putNullable(m, "parent", a.Parent)
	if a.ProjectID != nil {
		m["project_id"] = *a.ProjectID
	}
	putNullable(m, "archived_at", a.ArchivedAt)
	putNullable(m, "deleted_at", a.DeletedAt)
	return json.Marshal(m)
}

// UnmarshalJSON decodes file attributes; absent keys stay unset
func (a *FileAttrs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = FileAttrs{}
	if v, ok := raw["name"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		a.Name = &s
	}
	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &a.Type); err != nil {
			return err
		}
	}
	if v, ok := raw["project_id"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		a.ProjectID = &s
	}
	if v, ok := raw["parent"]; ok {
		if err := decodeNullable(v, &a.Parent); err != nil {
			return err
		}
	}
	if v, ok := raw["archived_at"]; ok {
		if err := decodeNullable(v, &a.ArchivedAt); err != nil {
			return err
		}
	}
	if v, ok := raw["deleted_at"]; ok {
		if err := decodeNullable(v, &a.DeletedAt); err != nil {
			return err
		}
	}
	return nil
}

// TreeFile is a file with its children resolved
type TreeFile struct {
	File  *File       `json:"file"`
	Nodes []*TreeFile `json:"nodes,omitempty"`
}

// Find returns the direct child matching the predicate
func (t *TreeFile) Find(match func(*File) bool) *TreeFile {
	for _, n := range t.Nodes {
		if match(n.File) {
			return n
		}
	}
	return nil
}

// SortFiles orders folders before documents, then by name
func SortFiles(files []*File) []*File {
	sorted := make([]*File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return sorted
}

// FileListToTree nests files under their parents.
// Files whose parent is unknown are placed at the root.
func FileListToTree(files []*File) []*TreeFile {
	nodes := make(map[string]*TreeFile, len(files))
	for _, f := range files {
		nodes[f.ID] = &TreeFile{File: f}
	}

	var roots []*TreeFile
	for _, f := range SortFiles(files) {
		node := nodes[f.ID]
		if parent, ok := nodes[f.ParentID()]; ok && f.ParentID() != f.ID {
			parent.Nodes = append(parent.Nodes, node)
			continue
		}
		roots = append(roots, node)
	}
	return roots
}
