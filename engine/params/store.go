package params

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fsnotify/fsnotify"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Key is the store key holding the serialized Params.
const Key = "params"

// ErrNotFound is returned by Store.Get for an absent key.
var ErrNotFound = errors.New("params: key not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a flat key/value store.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// FileStore keeps one "<key>.json" file per key under Dir.
type FileStore struct {
	Dir string
	log *zap.Logger
}

func NewFileStore(dir string, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{Dir: dir, log: log.Named("params")}
}

// Path returns the file backing key.
func (s *FileStore) Path(key string) string { return filepath.Join(s.Dir, key+".json") }

func (s *FileStore) Get(key string) ([]byte, error) {
	b, err := os.ReadFile(s.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return b, nil
}

// Set writes through a temp file and rename so watchers never see a partial value.
func (s *FileStore) Set(key string, value []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	path := s.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// Watch calls onChange whenever key is written or replaced on disk, until ctx
// is done. onChange runs on the watcher goroutine.
func (s *FileStore) Watch(ctx context.Context, key string, onChange func()) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("params watcher: %w", err)
	}
	// Watch the directory: atomic saves replace the file, which drops a file watch.
	if err := w.Add(s.Dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %q: %w", s.Dir, err)
	}
	target := filepath.Clean(s.Path(key))

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					s.log.Debug("store changed", zap.String("key", key), zap.Stringer("op", ev.Op))
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Load reads Params from st. Fields missing in the stored record keep their
// defaults. found is false when nothing was stored.
func Load(st Store) (p Params, found bool, err error) {
	p = Default()
	b, err := st.Get(Key)
	if errors.Is(err, ErrNotFound) {
		return p, false, nil
	}
	if err != nil {
		return p, false, err
	}
	p, err = Decode(b)
	if err != nil {
		return Default(), false, err
	}
	return p, true, nil
}

// Save serializes p under Key.
func Save(st Store, p Params) error {
	b, err := Encode(p)
	if err != nil {
		return err
	}
	return st.Set(Key, b)
}

// Encode renders p as a flat JSON object.
func Encode(p Params) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return b, nil
}

// wire mirrors Params with optional fields and a lenient flag.
type wire struct {
	TimeStep           *float64 `json:"timeStep"`
	ForceRadius        *float64 `json:"forceRadius"`
	ForceIntensity     *float64 `json:"forceIntensity"`
	ForceAttenuation   *float64 `json:"forceAttenuation"`
	Diffuse            *float64 `json:"diffuse"`
	AdditionalVelocity *flag    `json:"additionalVelocity"`
}

// flag accepts true/false as well as numbers.
type flag int

func (f *flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "true":
		*f = 1
		return nil
	case "false", "null":
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("additionalVelocity: %w", err)
	}
	*f = 0
	if v != 0 {
		*f = 1
	}
	return nil
}

// Decode parses a stored record over the defaults and clamps the result.
func Decode(b []byte) (Params, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return Default(), fmt.Errorf("decode params: %w", err)
	}
	p := Default()
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.TimeStep, w.TimeStep)
	set(&p.ForceRadius, w.ForceRadius)
	set(&p.ForceIntensity, w.ForceIntensity)
	set(&p.ForceAttenuation, w.ForceAttenuation)
	set(&p.Diffuse, w.Diffuse)
	if w.AdditionalVelocity != nil {
		p.AdditionalVelocity = int(*w.AdditionalVelocity)
	}
	return p.Clamped(), nil
}
