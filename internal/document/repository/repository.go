package repository

import (
	"context"

	"github.com/gogotex/pagesync/internal/document"
)

// Repository is the CRUD surface the document store persists through.
// Save replaces the whole document; there are no field-level updates.
type Repository interface {
	Create(ctx context.Context, doc *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	Save(ctx context.Context, doc *document.Document) error
	Delete(ctx context.Context, id string) error
}
