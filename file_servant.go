package local_server

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"strconv"
	"strings"
)

const indexFile = "index.html"

// DirServant serves files from a file system tree.
type DirServant struct {
	fsys fs.FS
}

// NewDirServant serves files below the directory root.
func NewDirServant(root string) *DirServant {
	return &DirServant{fsys: os.DirFS(root)}
}

func NewFSServant(fsys fs.FS) *DirServant {
	return &DirServant{fsys: fsys}
}

func (d *DirServant) ServeFile(subPath string) (*Response, error) {
	name := strings.TrimPrefix(subPath, "/")
	if name == "" || strings.HasSuffix(name, "/") {
		name += indexFile
	}
	name = strings.TrimSuffix(name, "/")
	if !fs.ValidPath(name) {
		return NotFound(subPath, "File not found"), nil
	}

	st, err := fs.Stat(d.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NotFound(subPath, "File not found"), nil
		}
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if st.IsDir() {
		name = path.Join(name, indexFile)
	}

	b, err := fs.ReadFile(d.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NotFound(subPath, "File not found"), nil
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := Headers{}
	h.Set(HeaderContentType, ct)
	h.Set(HeaderContentLength, strconv.Itoa(len(b)))
	return &Response{Status: StatusOK, Headers: h, Body: b}, nil
}
