package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"basegraph.app/skillflow/internal/domain"
	"basegraph.app/skillflow/internal/model"
)

const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
	HeaderSignature = "X-Hub-Signature-256"
)

var (
	ErrMissingEventType  = errors.New("missing event type header")
	ErrInvalidPayload    = errors.New("payload is not a JSON object")
	ErrMissingRepository = errors.New("payload has no repository")
)

// Parse builds an InboundEvent from a webhook request. Every error it returns
// is classified as an ingestion error.
func Parse(headers http.Header, body []byte, now time.Time) (model.InboundEvent, error) {
	eventType := strings.TrimSpace(headers.Get(HeaderEvent))
	if eventType == "" {
		return model.InboundEvent{}, domain.Ingestion("parse webhook", ErrMissingEventType)
	}

	payload, err := decodeObject(body)
	if err != nil {
		return model.InboundEvent{}, domain.Ingestion("parse webhook", err)
	}

	repo := repositoryName(payload)
	if repo == "" {
		return model.InboundEvent{}, domain.Ingestion("parse webhook", ErrMissingRepository)
	}

	action, _ := payload["action"].(string)

	return model.InboundEvent{
		EventType:  eventType,
		DeliveryID: strings.TrimSpace(headers.Get(HeaderDelivery)),
		RepoName:   repo,
		Action:     action,
		Payload:    payload,
		RawBody:    body,
		ReceivedAt: now.UTC(),
	}, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidPayload
	}

	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

// repositoryName prefers repository.full_name, then owner/name, then the
// organization login that org-level hooks (ping) carry instead of a repo.
func repositoryName(payload map[string]any) string {
	if repo, ok := payload["repository"].(map[string]any); ok {
		if full, ok := repo["full_name"].(string); ok && strings.TrimSpace(full) != "" {
			return strings.TrimSpace(full)
		}
		name, _ := repo["name"].(string)
		if owner, ok := repo["owner"].(map[string]any); ok {
			login, _ := owner["login"].(string)
			if login != "" && name != "" {
				return login + "/" + name
			}
		}
	}

	if org, ok := payload["organization"].(map[string]any); ok {
		if login, ok := org["login"].(string); ok && login != "" {
			return login
		}
	}

	return ""
}
