package api

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

// ListConversations returns the most recently updated conversations
func (c *Client) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.conversationLimit))

	body, _, err := c.doJSON(ctx, http.MethodGet, models.PathConversations, query, nil)
	if err != nil {
		return nil, err
	}

	list, err := listResult(body, PathListConversations)
	if err != nil {
		return nil, err
	}

	var out []models.ConversationSummary
	for _, item := range list.Array() {
		if item.IsObject() {
			out = append(out, parseConversation(item))
		}
	}
	return out, nil
}

type createConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// CreateConversation creates an empty conversation. title may be empty.
func (c *Client) CreateConversation(ctx context.Context, title string) (models.ConversationSummary, error) {
	body, _, err := c.doJSON(ctx, http.MethodPost, models.PathConversations, nil,
		createConversationRequest{Title: strings.TrimSpace(title)})
	if err != nil {
		return models.ConversationSummary{}, err
	}
	if !gjson.ValidBytes(body) {
		return models.ConversationSummary{}, apierrors.NewParseError("create response is not JSON", "")
	}

	conv := parseConversation(unwrapEnvelope(gjson.ParseBytes(body)))
	if conv.ID == "" {
		return models.ConversationSummary{}, apierrors.NewParseError("missing conversation id", PathConvID)
	}
	return conv, nil
}

// DeleteConversation removes a conversation. Gateways that reject DELETE
// with 403 or 405 are retried through the POST compatibility endpoint.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if id == "" {
		return apierrors.ErrNoConversation
	}
	escaped := url.PathEscape(id)

	_, status, err := c.doJSON(ctx, http.MethodDelete, models.ConversationPath(escaped), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusForbidden && status != http.StatusMethodNotAllowed {
		return err
	}

	c.logger.Debug().Str("conversation_id", id).Int("status", status).Msg("DELETE rejected, retrying with POST")
	_, _, err = c.doJSON(ctx, http.MethodPost, models.DeleteCompatPath(escaped), nil, nil)
	return err
}

func parseConversation(item gjson.Result) models.ConversationSummary {
	return models.ConversationSummary{
		ID:        idString(item.Get(PathConvID)),
		Title:     item.Get(PathConvTitle).String(),
		CreatedAt: parseTime(item.Get(PathConvCreatedAt)),
		UpdatedAt: parseTime(item.Get(PathConvUpdatedAt)),
	}
}
