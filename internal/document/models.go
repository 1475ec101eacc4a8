package document

import "time"

// DefaultTitle is used when a document is created without a title.
const DefaultTitle = "Untitled Document"

// Document is the shared unit of collaborative editing. Pages are ordered
// formatted-text blobs; the slice index is the page number.
type Document struct {
	ID        string    `json:"id" bson:"id"`
	Title     string    `json:"title" bson:"title"`
	Pages     []string  `json:"pages" bson:"pages"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" bson:"updatedAt"`
	IsLocked  bool      `json:"is_locked" bson:"isLocked"`
	// Versions are kept newest first.
	Versions []Version `json:"versions" bson:"versions"`
}

// Version is an immutable snapshot of a document's pages.
type Version struct {
	ID        string    `json:"id" bson:"id"`
	Editor    string    `json:"editor" bson:"editor"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Summary   string    `json:"summary" bson:"summary"`
	Pages     []string  `json:"pages" bson:"pages"`
}

// Clone returns a deep copy that shares no slices with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Pages = ClonePages(d.Pages)
	if d.Versions != nil {
		out.Versions = make([]Version, len(d.Versions))
		for i, v := range d.Versions {
			out.Versions[i] = v.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the version.
func (v Version) Clone() Version {
	v.Pages = ClonePages(v.Pages)
	return v
}

// FindVersion returns the version with the given id.
func (d *Document) FindVersion(id string) (Version, bool) {
	for _, v := range d.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return Version{}, false
}

// ClonePages copies pages and guarantees at least one page.
func ClonePages(pages []string) []string {
	if len(pages) == 0 {
		return []string{""}
	}
	out := make([]string, len(pages))
	copy(out, pages)
	return out
}
