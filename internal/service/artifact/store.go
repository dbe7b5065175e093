package artifact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/internal/util"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
)

// Store persists published avatar files by name.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Delete(ctx context.Context, name string) error
	Backend() string
}

// Stem returns "{slug}-{unix}", the file name stem for a persona published at t.
func Stem(personaName string, at time.Time) string {
	return util.Slugify(personaName) + "-" + util.UnixStamp(at)
}

// PublicURL joins base and name and appends a cache-busting version parameter.
func PublicURL(base, name string, at time.Time) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(name, "/") + "?v=" + util.UnixStamp(at)
}

// Published describes a stored artifact.
type Published struct {
	Name      string
	PublicURL string
	Bytes     int
}

// Publisher writes normalized images to a Store and derives their public URL.
type Publisher struct {
	store   Store
	baseURL string
	logger  *zap.Logger
}

func NewPublisher(store Store, baseURL string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Publish stores img under its file name. Failures are PersistenceErrors.
func (p *Publisher) Publish(ctx context.Context, recordID string, img *domain.NormalizedImage, at time.Time) (*Published, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, errors.NewPersistenceError("nothing to publish", recordID, "artifact_write", nil)
	}
	name := img.FileName()

	if err := p.store.Put(ctx, name, img.Data, img.ContentType); err != nil {
		return nil, errors.NewPersistenceError(fmt.Sprintf("failed to write artifact %s", name), recordID, "artifact_write", err)
	}

	published := &Published{
		Name:      name,
		PublicURL: PublicURL(p.baseURL, name, at),
		Bytes:     len(img.Data),
	}
	p.logger.Info("Avatar artifact written",
		zap.String("record_id", recordID),
		zap.String("backend", p.store.Backend()),
		zap.String("name", name),
		zap.Int("bytes", published.Bytes),
	)
	return published, nil
}

// Discard removes an artifact whose record update did not go through.
func (p *Publisher) Discard(ctx context.Context, name string) {
	if err := p.store.Delete(ctx, name); err != nil {
		p.logger.Warn("Failed to remove orphaned artifact", zap.String("name", name), zap.Error(err))
	}
}
