package tilecache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kiesman99/posterize/pkg/tile"
)

// Disk persists tiles under {root}/{provider}/{zoom}/{y}/{x}.png.
type Disk struct {
	root     string
	provider string
}

// NewDisk creates a disk store for one provider. Directories are created on
// demand by Put.
func NewDisk(root, provider string) *Disk {
	return &Disk{root: root, provider: provider}
}

// Path returns the file that holds a coordinate.
func (d *Disk) Path(c tile.Coordinate) string {
	return filepath.Join(d.root, d.provider,
		strconv.Itoa(int(c.Z)),
		strconv.FormatUint(uint64(c.Y), 10),
		strconv.FormatUint(uint64(c.X), 10)+".png")
}

func (d *Disk) Has(c tile.Coordinate) bool {
	info, err := os.Stat(d.Path(c))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func (d *Disk) Get(c tile.Coordinate) ([]byte, error) {
	path := d.Path(c)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, &tile.CacheError{Op: "read", Path: path, Err: err}
	}
	if len(data) == 0 {
		return nil, ErrMiss
	}
	return data, nil
}

// Put writes data through a temporary file and a rename, so concurrent
// readers see either no file or the whole tile.
func (d *Disk) Put(c tile.Coordinate, data []byte) error {
	path := d.Path(c)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &tile.CacheError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".tile-*")
	if err != nil {
		return &tile.CacheError{Op: "write", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &tile.CacheError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &tile.CacheError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &tile.CacheError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
