package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// markerStore records the device-local marker calls of a document service
type markerStore struct {
	mock.Mock
}

func (m *markerStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *markerStore) Set(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *markerStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func markerDocs(c *client, store *markerStore) *DocumentService {
	return NewDocumentService(DocumentServiceConfig{
		Binding:  c.binding,
		Files:    c.fileSvc,
		Registry: c.registry,
		Projects: c.projects,
		Local:    store,
		Logger:   testLogger(),
	})
}

func TestDocumentService_MarkerWriteFailureKeepsDocument(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	docID := c.newDoc(t, "notes")

	store := new(markerStore)
	store.On("Set", mock.Anything, LastDocKey, "p1/"+docID).Return(errors.New("disk full")).Once()

	s, err := markerDocs(c, store).Load(ctx, c.project, docID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Ref().DocumentID != docID {
		t.Errorf("bound %q, want %q", s.Ref().DocumentID, docID)
	}
	store.AssertExpectations(t)
}

func TestDocumentService_FailedLoadDeletesMarker(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	docID := c.newDoc(t, "notes")
	c.files.ReadFileFn = func(projectID, fileID string) (domain.Content, error) {
		return domain.Content{}, errors.New("offline")
	}

	store := new(markerStore)
	store.On("Delete", mock.Anything, LastDocKey).Return(nil).Once()

	if _, err := markerDocs(c, store).Load(ctx, c.project, docID); err == nil {
		t.Fatal("expected the load to fail")
	}
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestDocumentService_LastDocMarkers(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		err    error
		want   domain.DocRef
		wantOK bool
	}{
		{"valid", "p1/d1", nil, domain.DocRef{ProjectID: "p1", DocumentID: "d1"}, true},
		{"malformed", "d1", nil, domain.DocRef{}, false},
		{"missing", "", domain.ErrNotFound, domain.DocRef{}, false},
		{"unreadable", "", errors.New("locked"), domain.DocRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t)
			store := new(markerStore)
			store.On("Get", mock.Anything, LastDocKey).Return(tt.value, tt.err)

			ref, ok := markerDocs(c, store).LastDoc(context.Background())
			if ok != tt.wantOK || ref != tt.want {
				t.Errorf("LastDoc() = %v, %v; want %v, %v", ref, ok, tt.want, tt.wantOK)
			}
			store.AssertExpectations(t)
		})
	}
}
