package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"yt-auto-saver/internal/model"
	"yt-auto-saver/internal/runstore"
)

// ErrInconsistentState means more than one file in the destination matches an id.
var ErrInconsistentState = errors.New("inconsistent state")

// Lister lists the file names directly inside a directory.
type Lister interface {
	List(dir string) ([]string, error)
}

// OSLister lists regular files, skipping the run lock and in-flight temp files.
type OSLister struct{}

func (OSLister) List(dir string) ([]string, error) {
	return runstore.ListFiles(dir)
}

// Catalog derives item state from the names of files in one destination directory.
type Catalog struct {
	dir    string
	lister Lister
}

func New(dir string, lister Lister) *Catalog {
	if lister == nil {
		lister = OSLister{}
	}
	return &Catalog{dir: dir, lister: lister}
}

func (c *Catalog) Dir() string {
	return c.dir
}

func (c *Catalog) matches(id string, filter func(string) bool) ([]string, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("item id is required")
	}
	names, err := c.lister.List(c.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		if !strings.Contains(name, id) {
			continue
		}
		if filter != nil && !filter(name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (c *Catalog) State(id string) (model.ProcessingState, error) {
	found, err := c.matches(id, nil)
	if err != nil {
		return model.StateUnprocessed, err
	}
	switch len(found) {
	case 0:
		return model.StateUnprocessed, nil
	case 1:
		return model.ClassifyName(found[0]), nil
	default:
		return model.StateUnprocessed, inconsistent(id, found)
	}
}

// DeleteMarker removes the single marker for id. No marker is not an error.
func (c *Catalog) DeleteMarker(id string) error {
	found, err := c.matches(id, func(name string) bool {
		return strings.HasSuffix(name, model.MarkerExt)
	})
	if err != nil {
		return err
	}
	switch len(found) {
	case 0:
		return nil
	case 1:
		path := filepath.Join(c.dir, found[0])
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete failure marker %s: %w", path, err)
		}
		return nil
	default:
		return inconsistent(id, found)
	}
}

func inconsistent(id string, found []string) error {
	return fmt.Errorf("%w: id %s matches %d files: %s", ErrInconsistentState, id, len(found), strings.Join(found, ", "))
}
