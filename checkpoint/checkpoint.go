// Package checkpoint manages the files a run persists its model into.
//
// Every run owns one directory under a model root. A checkpoint for step n
// of run "pong" lives at <root>/pong/pong.ckpt-n.
package checkpoint

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultRoot is the directory runs are stored under when no root is given.
const DefaultRoot = "saved_models/dqn"

const ext = ".ckpt-"

// ErrNotFound is returned when a run has no checkpoint.
var ErrNotFound = errors.New("no checkpoint found")

// Store locates, writes and opens the checkpoints of a single run.
type Store struct {
	root string
	name string
}

// New returns a Store for the run name rooted at root. An empty root means
// DefaultRoot.
func New(root, name string) (*Store, error) {
	if name == "" {
		return nil, errors.New("checkpoint: run name is required")
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return nil, errors.Errorf("checkpoint: run name %q must not contain a path separator", name)
	}
	if root == "" {
		root = DefaultRoot
	}
	return &Store{root: root, name: name}, nil
}

// Dir is the directory of the run.
func (s *Store) Dir() string { return filepath.Join(s.root, s.name) }

// Path is the path of the checkpoint for step.
func (s *Store) Path(step int) string {
	return filepath.Join(s.Dir(), fmt.Sprintf("%s%s%d", s.name, ext, step))
}

// Steps returns the steps that have a checkpoint, in increasing order.
func (s *Store) Steps() ([]int, error) {
	infos, err := ioutil.ReadDir(s.Dir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	prefix := s.name + ext
	var retVal []int
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasPrefix(fi.Name(), prefix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimPrefix(fi.Name(), prefix))
		if err != nil || step < 0 {
			continue
		}
		retVal = append(retVal, step)
	}
	sort.Ints(retVal)
	return retVal, nil
}

// Latest returns the checkpoint with the highest step.
func (s *Store) Latest() (path string, step int, err error) {
	var steps []int
	if steps, err = s.Steps(); err != nil {
		return "", 0, err
	}
	if len(steps) == 0 {
		return "", 0, errors.Wrapf(ErrNotFound, "run %q in %v", s.name, s.root)
	}
	step = steps[len(steps)-1]
	return s.Path(step), step, nil
}

// Save writes the checkpoint for step with write. The data is written to a
// temporary file in the run directory, synced and then renamed over the
// final path. A failed Save leaves earlier checkpoints untouched.
func (s *Store) Save(step int, write func(w io.Writer) error) (string, error) {
	if step < 0 {
		return "", errors.Errorf("checkpoint: invalid step %d", step)
	}
	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		return "", errors.WithStack(err)
	}

	f, err := ioutil.TempFile(s.Dir(), "."+s.name+"-*.tmp")
	if err != nil {
		return "", errors.WithStack(err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op once renamed

	if err = write(f); err != nil {
		f.Close()
		return "", errors.WithMessage(err, fmt.Sprintf("checkpoint: cannot write step %d", step))
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return "", errors.WithStack(err)
	}
	if err = f.Close(); err != nil {
		return "", errors.WithStack(err)
	}

	path := s.Path(step)
	if err = os.Rename(tmp, path); err != nil {
		return "", errors.WithStack(err)
	}
	return path, nil
}

// Open opens a checkpoint for reading.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrNotFound, "%v", path)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return f, nil
}
