package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/server/chat/domain"
)

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjects) PresignPut(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/put/" + key, nil
}

func (m *memoryObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/get/" + key, nil
}

func (m *memoryObjects) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	m.types[key] = contentType
	return nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPresignUpload(t *testing.T) {
	svc := NewAttachmentService(newMemoryObjects(), nil)
	svc.newID = func() string { return "obj1" }

	up, err := svc.PresignUpload(context.Background(), "u1", PresignInput{FileName: "../Report.PDF"})
	require.NoError(t, err)
	assert.Equal(t, "uploads/u1/obj1.pdf", up.ObjectKey)
	assert.Equal(t, "https://objects.test/put/uploads/u1/obj1.pdf", up.UploadURL)

	_, err = svc.PresignUpload(context.Background(), "u1", PresignInput{FileName: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegisterAttachment_ImageGetsThumbnail(t *testing.T) {
	ctx := context.Background()
	objects := newMemoryObjects()
	require.NoError(t, objects.Put(ctx, "uploads/u1/pic.png", bytes.NewReader(pngBytes(t, 800, 600)), 0, "image/png"))
	svc := NewAttachmentService(objects, nil)

	att, err := svc.Register(ctx, "u1", RegisterAttachmentInput{ObjectKey: "uploads/u1/pic.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, domain.AttachmentImage, att.Kind)
	assert.Equal(t, "pic.png", att.Name)
	assert.Equal(t, AttachmentRoute+"uploads/u1/pic.png", att.URL)
	require.NotNil(t, att.PreviewURL)
	assert.Equal(t, AttachmentRoute+"uploads/u1/pic_thumb.jpg", *att.PreviewURL)

	assert.Equal(t, "image/jpeg", objects.types["uploads/u1/pic_thumb.jpg"])
	thumb, _, err := image.Decode(bytes.NewReader(objects.objects["uploads/u1/pic_thumb.jpg"]))
	require.NoError(t, err)
	assert.Equal(t, thumbnailSize, thumb.Bounds().Dx())
	assert.Equal(t, thumbnailSize, thumb.Bounds().Dy())
}

func TestRegisterAttachment_FilesAndFailures(t *testing.T) {
	ctx := context.Background()
	svc := NewAttachmentService(newMemoryObjects(), nil)

	size := int64(42)
	att, err := svc.Register(ctx, "u1", RegisterAttachmentInput{ObjectKey: "uploads/u1/notes.txt", Name: "notes", ContentType: "text/plain", Size: &size})
	require.NoError(t, err)
	assert.Equal(t, domain.AttachmentFile, att.Kind)
	assert.Equal(t, "notes", att.Name)
	assert.Nil(t, att.PreviewURL)

	// missing object: registration still succeeds without a preview
	att, err = svc.Register(ctx, "u1", RegisterAttachmentInput{ObjectKey: "uploads/u1/ghost.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.Nil(t, att.PreviewURL)

	_, err = svc.Register(ctx, "u1", RegisterAttachmentInput{ObjectKey: "uploads/u2/theirs.png"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Register(ctx, "u1", RegisterAttachmentInput{ObjectKey: "uploads/u1/../u2/x"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Register(ctx, "u1", RegisterAttachmentInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDownloadURL_OwnUploads(t *testing.T) {
	svc := NewAttachmentService(newMemoryObjects(), nil)
	u, err := svc.DownloadURL(context.Background(), "u1", "/uploads/u1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://objects.test/get/uploads/u1/a.pdf", u)

	_, err = svc.DownloadURL(context.Background(), "u1", "../etc/passwd")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.DownloadURL(context.Background(), "u1", "uploads/u2/a.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDownloadURL_FollowsChannelVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAttachmentService(newMemoryObjects(), f.chat)

	preview := AttachmentRoute + "uploads/u1/plan_thumb.jpg"
	_, err := f.chat.SendMessage(ctx, "u1", "secret", SendMessageInput{Attachments: []domain.Attachment{
		{Kind: domain.AttachmentImage, URL: AttachmentRoute + "uploads/u1/plan.png", PreviewURL: &preview},
	}})
	require.NoError(t, err)

	u, err := svc.DownloadURL(ctx, "u2", "uploads/u1/plan.png")
	require.NoError(t, err)
	assert.Equal(t, "https://objects.test/get/uploads/u1/plan.png", u)
	_, err = svc.DownloadURL(ctx, "u2", "uploads/u1/plan_thumb.jpg")
	assert.NoError(t, err)

	// u3 is not a member of the private channel
	_, err = svc.DownloadURL(ctx, "u3", "uploads/u1/plan.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.DownloadURL(ctx, "u2", "uploads/u1/other.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
