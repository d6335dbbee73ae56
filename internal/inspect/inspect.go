// Package inspect checks selected files before they are staged for extraction.
package inspect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

var (
	ErrFileType = eris.New("file type not allowed")
	ErrFileSize = eris.New("file too large")
	ErrEmpty    = eris.New("file is empty")
)

// Policy lists what the upload queue accepts.
type Policy struct {
	AllowedExtensions []string // lower-case, with leading dot
	MaxSize           int64    // bytes, 0 disables the check
}

// ParsePolicy builds a Policy from a comma separated extension list.
func ParsePolicy(extensions string, maxSize int64) Policy {
	var exts []string
	for _, ext := range strings.Split(extensions, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	return Policy{AllowedExtensions: exts, MaxSize: maxSize}
}

// Check validates a selected file by name and size.
func (p Policy) Check(name string, size int64) error {
	if size == 0 {
		return eris.Wrapf(ErrEmpty, "%s", name)
	}
	if p.MaxSize > 0 && size > p.MaxSize {
		return eris.Wrapf(ErrFileSize, "%s is %d bytes, limit %d", name, size, p.MaxSize)
	}
	if len(p.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range p.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return eris.Wrapf(ErrFileType, "%s (allowed: %s)", name, strings.Join(p.AllowedExtensions, ", "))
}

// PageCount opens a staged PDF and returns its number of pages.
func PageCount(path string) (pages int, err error) {
	// the reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = eris.New(fmt.Sprintf("inspect: malformed pdf: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, eris.Wrap(err, "inspect: open pdf")
	}
	defer f.Close()

	return r.NumPage(), nil
}
