package checkpoint

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	s, err := New("", "pong")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultRoot, "pong"), s.Dir())
	assert.Equal(t, filepath.Join(DefaultRoot, "pong", "pong.ckpt-42"), s.Path(42))

	_, err = New("models", "")
	assert.Error(t, err)

	_, err = New("models", "a"+string(filepath.Separator)+"b")
	assert.Error(t, err)
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestStore_SaveLatest(t *testing.T) {
	assert := assert.New(t)
	s, err := New(t.TempDir(), "breakout")
	require.NoError(t, err)

	_, _, err = s.Latest()
	assert.Equal(ErrNotFound, errors.Cause(err))

	for _, step := range []int{10, 200, 30} {
		path, err := s.Save(step, writeString("step"))
		require.NoError(t, err)
		assert.Equal(s.Path(step), path)
	}

	// unrelated files are ignored
	require.NoError(t, ioutil.WriteFile(filepath.Join(s.Dir(), "breakout.ckpt-x"), nil, 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(s.Dir(), "notes.txt"), nil, 0644))

	steps, err := s.Steps()
	require.NoError(t, err)
	assert.Equal([]int{10, 30, 200}, steps)

	path, step, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(200, step)
	assert.Equal(s.Path(200), path)
}

func TestStore_FailedSaveKeepsCheckpoint(t *testing.T) {
	s, err := New(t.TempDir(), "seaquest")
	require.NoError(t, err)

	_, err = s.Save(1, writeString("good"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Save(1, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	assert.Equal(t, boom, errors.Cause(err))

	rc, err := s.Open(s.Path(1))
	require.NoError(t, err)
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "good", string(data))

	// no temporary files are left behind
	infos, err := ioutil.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestStore_Open(t *testing.T) {
	s, err := New(t.TempDir(), "qbert")
	require.NoError(t, err)

	_, err = s.Open(s.Path(3))
	assert.Equal(t, ErrNotFound, errors.Cause(err))

	_, err = s.Save(-1, writeString(""))
	assert.Error(t, err)

	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}
