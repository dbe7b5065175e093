package records

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
)

type rawRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type listResponse struct {
	Records []rawRecord `json:"records"`
	Offset  string      `json:"offset,omitempty"`
}

type patchRequest struct {
	Fields map[string]any `json:"fields"`
}

// Repository gives paginated read and patch access to persona records.
type Repository struct {
	client      Requester
	avatarField string
	pageSize    int
	logger      *zap.Logger
}

func NewRepository(client Requester, avatarField string, pageSize int, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Repository{
		client:      client,
		avatarField: avatarField,
		pageSize:    pageSize,
		logger:      logger,
	}
}

// AvatarField is the name of the field holding the avatar reference.
func (r *Repository) AvatarField() string {
	return r.avatarField
}

// ListAll lazily pages through every record. Each call starts from the first
// page. A page error is yielded once and ends the sequence.
func (r *Repository) ListAll(ctx context.Context) iter.Seq2[*domain.PersonaRecord, error] {
	return func(yield func(*domain.PersonaRecord, error) bool) {
		cursor := ""
		page := 0
		for {
			page++
			resp, err := r.fetchPage(ctx, cursor)
			if err != nil {
				r.logger.Error("Failed to fetch record page",
					zap.Int("page", page),
					zap.Error(err),
				)
				yield(nil, err)
				return
			}

			r.logger.Debug("Fetched record page",
				zap.Int("page", page),
				zap.Int("records", len(resp.Records)),
				zap.Bool("has_more", resp.Offset != ""),
			)

			for _, raw := range resp.Records {
				if raw.ID == "" {
					continue
				}
				if !yield(domain.NewPersonaRecord(raw.ID, raw.Fields, r.avatarField), nil) {
					return
				}
			}

			if resp.Offset == "" {
				return
			}
			cursor = resp.Offset
		}
	}
}

func (r *Repository) fetchPage(ctx context.Context, cursor string) (*listResponse, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(r.pageSize))
	if cursor != "" {
		params.Set("offset", cursor)
	}

	body, err := r.client.DoRequest(ctx, http.MethodGet, "", params, nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewTransportError("failed to decode record page", "", 0, err)
	}
	return &resp, nil
}

// Update patches the given fields of one record.
func (r *Repository) Update(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return errors.NewPersistenceError("record id is required", id, "update", nil)
	}

	payload, err := json.Marshal(patchRequest{Fields: fields})
	if err != nil {
		return errors.NewPersistenceError("failed to encode record patch", id, "update", err)
	}

	if _, err := r.client.DoRequest(ctx, http.MethodPatch, "/"+url.PathEscape(id), nil, payload); err != nil {
		return errors.NewPersistenceError(fmt.Sprintf("failed to update record %s", id), id, "update", err)
	}

	r.logger.Debug("Record updated", zap.String("record_id", id), zap.Int("fields", len(fields)))
	return nil
}

// UpdateAvatar patches only the avatar field.
func (r *Repository) UpdateAvatar(ctx context.Context, id string, value any) error {
	return r.Update(ctx, id, map[string]any{r.avatarField: value})
}
