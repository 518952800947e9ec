package api

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

// Timestamp layouts the backend has been seen to emit
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// FetchMessages returns the page of messages after cursor, oldest first
func (c *Client) FetchMessages(ctx context.Context, conversationID string, cursor models.Cursor, pageSize int) ([]models.HistoryMessage, error) {
	if conversationID == "" {
		return nil, apierrors.ErrNoConversation
	}
	if pageSize <= 0 {
		pageSize = models.DefaultHistoryPage
	}

	query := url.Values{}
	query.Set("lastId", cursor.String())
	query.Set("limit", strconv.Itoa(pageSize))

	path := models.MessagesPath(url.PathEscape(conversationID))
	body, _, err := c.doJSON(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return parseHistory(body)
}

func parseHistory(body []byte) ([]models.HistoryMessage, error) {
	list, err := listResult(body, PathListMessages)
	if err != nil {
		return nil, err
	}

	var out []models.HistoryMessage
	for _, item := range list.Array() {
		if !item.IsObject() {
			continue
		}
		role := item.Get(PathMsgRole).String()
		if role == "" {
			role = item.Get(PathMsgAltRole).String()
		}
		created := item.Get(PathMsgCreatedAt)
		if !created.Exists() {
			created = item.Get(PathMsgAltCreatedAt)
		}
		out = append(out, models.HistoryMessage{
			ID:        idString(item.Get(PathMsgID)),
			Role:      role,
			Content:   item.Get(PathMsgContent).String(),
			CreatedAt: parseTime(created),
		})
	}
	return out, nil
}

// listResult finds the array in a list response: a bare array, an envelope
// around one, or an object keyed by container.
func listResult(body []byte, container string) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, apierrors.NewParseError("response is not JSON", "")
	}
	root := unwrapEnvelope(gjson.ParseBytes(body))
	if root.IsArray() {
		return root, nil
	}
	for _, key := range []string{container, PathListRecords} {
		if v := root.Get(key); v.IsArray() {
			return v, nil
		}
	}
	if root.Type == gjson.Null {
		return gjson.Parse("[]"), nil
	}
	return gjson.Result{}, apierrors.NewParseError("expected a list", container)
}

// parseTime accepts ISO strings with or without zone, and epoch millis
func parseTime(v gjson.Result) time.Time {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int())
	case gjson.String:
		s := strings.TrimSpace(v.String())
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
