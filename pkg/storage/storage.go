// Package storage keeps captured stills on disk as timestamped JPEG files
// with a small info.json index next to them.
package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"cam2-shutter/pkg/storage/consts"
	"cam2-shutter/pkg/storage/util"
	"cam2-shutter/pkg/types"
)

var ErrNotFound = errors.New("still not found")

type ImagesInfo struct {
	Count       int    `json:"count"`
	LatestImage string `json:"latestImage"`

	UpdateAt time.Time `json:"updateAt"`
}

type Storage struct {
	root string
	lock sync.Mutex
}

func New(root string) (*Storage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage path can not be empty")
	}
	s := &Storage{root: root}
	if err := util.MkdirAll(s.ImageDir(), s.VideoDir()); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.infoPath()); os.IsNotExist(err) {
		if err = s.dumpImageInfo(&ImagesInfo{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) ImageDir() string {
	return path.Join(s.root, consts.DefaultImagesDir)
}

func (s *Storage) VideoDir() string {
	return path.Join(s.root, consts.DefaultVideosDir)
}

// StillName is the file name for a still taken at t.
func StillName(t time.Time) string {
	return fmt.Sprintf("%s%s_%03d%s", consts.StillPrefix, t.Format(consts.StillTimeLayout),
		t.Nanosecond()/int(time.Millisecond), consts.DefaultImageExt)
}

// SaveStill writes a JPEG still and returns its path.
func (s *Storage) SaveStill(data []byte, at time.Time) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty still")
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	info, err := s.loadImageInfo()
	if err != nil {
		return "", err
	}
	name := StillName(at)
	p := path.Join(s.ImageDir(), name)
	if err = os.WriteFile(p, data, consts.DefaultFilePerm); err != nil {
		return "", errors.Wrapf(err, "write %s", name)
	}

	info.Count++
	info.LatestImage = name
	if err = s.dumpImageInfo(info); err != nil {
		return "", err
	}

	return p, nil
}

func (s *Storage) LatestStillName() (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	info, err := s.loadImageInfo()
	if err != nil {
		return "", err
	}

	return info.LatestImage, nil
}

func (s *Storage) GetStill(name string) ([]byte, error) {
	p, err := s.StillPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return data, err
}

// StillPath resolves name inside the image directory. Names that would
// leave it are rejected.
func (s *Storage) StillPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, consts.DefaultImageExt) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	return path.Join(s.ImageDir(), name), nil
}

// ListStills returns the stills oldest first.
func (s *Storage) ListStills() ([]types.File, error) {
	entries, err := os.ReadDir(s.ImageDir())
	if err != nil {
		return nil, err
	}
	var res []types.File
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), consts.StillPrefix) || !strings.HasSuffix(e.Name(), consts.DefaultImageExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		res = append(res, types.File{
			Name:    e.Name(),
			Size:    humanize.Bytes(uint64(fi.Size())),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })

	return res, nil
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) loadImageInfo() (*ImagesInfo, error) {
	data, err := os.ReadFile(s.infoPath())
	if err != nil {
		return nil, fmt.Errorf("read image info err: %w", err)
	}
	info := &ImagesInfo{}
	if err = json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("unmarshal image info err: %w", err)
	}

	return info, nil
}

func (s *Storage) dumpImageInfo(info *ImagesInfo) error {
	info.UpdateAt = time.Now()
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return os.WriteFile(s.infoPath(), data, consts.DefaultFilePerm)
}

func (s *Storage) infoPath() string {
	return path.Join(s.ImageDir(), consts.DefaultInfoFile)
}
