package bootprobe

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeReader struct {
	running, exists bool
	files           map[string]string
}

func (f *fakeReader) IsRunning(ctx context.Context, id string) (bool, bool, error) {
	return f.running, f.exists, nil
}

func (f *fakeReader) GetArchive(ctx context.Context, id, path string) (io.ReadCloser, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, assert.AnError
	}
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: "file", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
	_ = tw.WriteHeader(hdr)
	_, _ = tw.Write([]byte(content))
	_ = tw.Close()
	return io.NopCloser(&buf), nil
}

func TestPollContainerGone(t *testing.T) {
	r := &fakeReader{exists: false}
	res := Poll(context.Background(), r, "c1", time.Now())
	assert.NotNil(t, res.Finished)
	assert.False(t, *res.Finished)
	assert.Equal(t, "Container does not exist", res.Message)
}

func TestPollContainerDied(t *testing.T) {
	r := &fakeReader{exists: true, running: false}
	res := Poll(context.Background(), r, "c1", time.Now())
	assert.NotNil(t, res.Finished)
	assert.False(t, *res.Finished)
	assert.Equal(t, "Container died during boot", res.Message)
}

func TestPollBootComplete(t *testing.T) {
	r := &fakeReader{exists: true, running: true, files: map[string]string{"/helios/boot_complete": ""}}
	res := Poll(context.Background(), r, "c1", time.Now())
	assert.NotNil(t, res.Finished)
	assert.True(t, *res.Finished)
}

func TestPollStatusMessage(t *testing.T) {
	r := &fakeReader{exists: true, running: true, files: map[string]string{
		"/helios/boot_status": `{"message": "migrating schema:"}`,
	}}
	res := Poll(context.Background(), r, "c1", time.Now())
	assert.Nil(t, res.Finished)
	assert.Equal(t, "migrating schema", res.Message)
}

func TestPollBackwardCompatibility(t *testing.T) {
	r := &fakeReader{exists: true, running: true, files: map[string]string{}}
	res := Poll(context.Background(), r, "c1", time.Now().Add(-3*time.Second))
	assert.NotNil(t, res.Finished)
	assert.True(t, *res.Finished)
	assert.Equal(t, "Non-seedship boot complete", res.Message)
}
