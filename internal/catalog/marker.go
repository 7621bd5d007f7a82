package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"yt-auto-saver/internal/model"
	"yt-auto-saver/internal/runstore"
)

var reMarkerName = regexp.MustCompile(`^\[([^\]]+)\] - (.*) \[([^\[\]]+)\]\.txt$`)

type Marker struct {
	Name  string `json:"name"`
	Tag   string `json:"tag"`
	Title string `json:"title"`
	ID    string `json:"id"`
}

type Summary struct {
	Dir     string         `json:"dir"`
	Media   int            `json:"media"`
	Markers map[string]int `json:"markers"`
}

func MarkerName(tag, title, id string) string {
	return fmt.Sprintf("[%s] - %s [%s]%s", tag, SanitizeTitle(title), id, model.MarkerExt)
}

// ParseMarkerName splits a marker file name into its parts.
func ParseMarkerName(name string) (Marker, bool) {
	m := reMarkerName.FindStringSubmatch(name)
	if len(m) != 4 {
		return Marker{}, false
	}
	return Marker{Name: name, Tag: m[1], Title: m[2], ID: m[3]}, true
}

// FormatMarker renders the marker body: an Exceptions section with one
// delimited block per error, then the raw metadata as compact JSON.
func FormatMarker(errs []error, raw json.RawMessage) ([]byte, error) {
	var b bytes.Buffer
	if len(errs) > 0 {
		b.WriteString("Exceptions:\n")
		for _, err := range errs {
			if err == nil {
				continue
			}
			b.WriteString("======\n")
			b.WriteString(strings.TrimRight(err.Error(), "\n"))
			b.WriteString("\n")
			b.WriteString("======\n")
		}
		b.WriteString("\n\n")
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, fmt.Errorf("compact raw metadata: %w", err)
		}
		b.WriteString("Raw info:\n")
		b.Write(compact.Bytes())
	}
	return b.Bytes(), nil
}

// WriteMarker records a failure for id, replacing a marker of the same name.
func (c *Catalog) WriteMarker(id, title, tag string, errs []error, raw json.RawMessage) (string, error) {
	if !model.IsKnownStatusTag(tag) {
		return "", fmt.Errorf("unknown status tag %q", tag)
	}
	body, err := FormatMarker(errs, raw)
	if err != nil {
		return "", err
	}
	path := filepath.Join(c.dir, MarkerName(tag, title, id))
	if err := runstore.WriteBytes(path, body); err != nil {
		return "", fmt.Errorf("write failure marker for %s: %w", id, err)
	}
	return path, nil
}

func (c *Catalog) Markers() ([]Marker, error) {
	names, err := c.lister.List(c.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Marker, 0)
	for _, name := range names {
		if !strings.HasSuffix(name, model.MarkerExt) {
			continue
		}
		m, ok := ParseMarkerName(name)
		if !ok {
			m = Marker{Name: name, Tag: "unknown"}
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tag != out[j].Tag {
			return out[i].Tag < out[j].Tag
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (c *Catalog) ReadMarker(name string) (string, error) {
	if filepath.Base(name) != name {
		return "", fmt.Errorf("invalid marker name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(c.dir, name))
	if err != nil {
		return "", fmt.Errorf("read failure marker %s: %w", name, err)
	}
	return string(data), nil
}

// RemoveMarker deletes a marker by file name, leaving its id Unprocessed.
func (c *Catalog) RemoveMarker(name string) error {
	if filepath.Base(name) != name || !strings.HasSuffix(name, model.MarkerExt) {
		return fmt.Errorf("invalid marker name %q", name)
	}
	path := filepath.Join(c.dir, name)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete failure marker %s: %w", path, err)
	}
	return nil
}

func (c *Catalog) Summarize() (Summary, error) {
	names, err := c.lister.List(c.dir)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Dir: c.dir, Markers: map[string]int{}}
	for _, name := range names {
		if model.ClassifyName(name) != model.StateFailed {
			s.Media++
			continue
		}
		tag := "unknown"
		if m, ok := ParseMarkerName(name); ok {
			tag = m.Tag
		}
		s.Markers[tag]++
	}
	return s, nil
}
