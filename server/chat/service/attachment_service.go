package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"workhub/server/chat/domain"
	commonlog "workhub/server/common/log"
)

const (
	uploadURLTTL   = 15 * time.Minute
	downloadURLTTL = 15 * time.Minute
	thumbnailSize  = 320
	// AttachmentRoute is where registered attachments are served from.
	AttachmentRoute = "/api/v1/attachments/"
)

// ObjectStore is the slice of object storage the attachment flow needs.
type ObjectStore interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// AttachmentAccess decides whether an actor may read an attachment url that
// is not one of their own uploads.
type AttachmentAccess interface {
	CanSeeAttachment(ctx context.Context, actorID, url string) (bool, error)
}

type AttachmentService struct {
	objects ObjectStore
	access  AttachmentAccess
	newID   func() string
}

// NewAttachmentService builds the attachment flow. With a nil access checker
// actors can only download their own uploads.
func NewAttachmentService(objects ObjectStore, access AttachmentAccess) *AttachmentService {
	return &AttachmentService{objects: objects, access: access, newID: uuid.NewString}
}

type PresignInput struct {
	FileName string `json:"file_name"`
}

type PresignedUpload struct {
	ObjectKey string `json:"object_key"`
	UploadURL string `json:"upload_url"`
}

type RegisterAttachmentInput struct {
	ObjectKey   string `json:"object_key"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        *int64 `json:"size"`
}

// PresignUpload reserves an object key under the actor's upload prefix and
// returns a short-lived PUT url for it.
func (s *AttachmentService) PresignUpload(ctx context.Context, actorID string, in PresignInput) (PresignedUpload, error) {
	name := path.Base(strings.TrimSpace(in.FileName))
	if name == "" || name == "." || name == "/" {
		return PresignedUpload{}, fmt.Errorf("file_name is required: %w", domain.ErrInvalidInput)
	}
	key := uploadPrefix(actorID) + s.newID() + strings.ToLower(path.Ext(name))
	u, err := s.objects.PresignPut(ctx, key, uploadURLTTL)
	if err != nil {
		return PresignedUpload{}, err
	}
	return PresignedUpload{ObjectKey: key, UploadURL: u}, nil
}

// Register turns an uploaded object into an Attachment. Images get a JPEG
// thumbnail used as preview; a failed thumbnail does not fail registration.
func (s *AttachmentService) Register(ctx context.Context, actorID string, in RegisterAttachmentInput) (domain.Attachment, error) {
	key := strings.TrimPrefix(strings.TrimSpace(in.ObjectKey), "/")
	if key == "" {
		return domain.Attachment{}, fmt.Errorf("object_key is required: %w", domain.ErrInvalidInput)
	}
	if !strings.HasPrefix(key, uploadPrefix(actorID)) || strings.Contains(key, "..") {
		return domain.Attachment{}, fmt.Errorf("object %s: %w", key, domain.ErrForbidden)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = path.Base(key)
	}

	att := domain.Attachment{
		ID:   s.newID(),
		Kind: kindForContentType(in.ContentType),
		URL:  AttachmentRoute + key,
		Name: name,
		Size: in.Size,
	}
	if att.Kind == domain.AttachmentImage {
		thumbKey, err := s.makeThumbnail(ctx, key)
		if err != nil {
			commonlog.Warnf("event=attachment_thumbnail action=create status=failed object_key=%s error=%v", key, err)
		} else {
			preview := AttachmentRoute + thumbKey
			att.PreviewURL = &preview
		}
	}
	return att, nil
}

// DownloadURL returns a fresh presigned GET url for a stored object. Actors
// may fetch their own uploads and objects attached to messages they can read;
// any other key is reported as not found.
func (s *AttachmentService) DownloadURL(ctx context.Context, actorID, key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("object key: %w", domain.ErrInvalidInput)
	}
	if !strings.HasPrefix(key, uploadPrefix(actorID)) {
		visible := false
		if s.access != nil {
			var err error
			if visible, err = s.access.CanSeeAttachment(ctx, actorID, AttachmentRoute+key); err != nil {
				return "", err
			}
		}
		if !visible {
			return "", fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
		}
	}
	return s.objects.PresignGet(ctx, key, downloadURLTTL)
}

func (s *AttachmentService) makeThumbnail(ctx context.Context, key string) (string, error) {
	obj, err := s.objects.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	img, _, err := image.Decode(obj)
	if err != nil {
		return "", err
	}

	thumb := imaging.Thumbnail(img, thumbnailSize, thumbnailSize, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}

	thumbKey := strings.TrimSuffix(key, path.Ext(key)) + "_thumb.jpg"
	reader := bytes.NewReader(buf.Bytes())
	if err := s.objects.Put(ctx, thumbKey, reader, int64(reader.Len()), "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload thumb: %w", err)
	}
	return thumbKey, nil
}

func uploadPrefix(actorID string) string {
	return "uploads/" + actorID + "/"
}

func kindForContentType(contentType string) domain.AttachmentKind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return domain.AttachmentImage
	}
	return domain.AttachmentFile
}
