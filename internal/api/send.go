package api

import (
	"context"
	"strconv"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/agentchat/internal/errors"
	"github.com/diogo/agentchat/internal/models"
)

type sendRequest struct {
	ConversationID any    `json:"conversationId"`
	Content        string `json:"content"`
}

// Send posts a user message. The backend assigns a conversation id when
// conversationID is empty and answers with the complete, non-streamed reply.
func (c *Client) Send(ctx context.Context, conversationID, text string) (models.SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.SendResult{}, apierrors.ErrEmptyPrompt
	}

	body, _, err := c.doJSON(ctx, http.MethodPost, models.PathChat, nil, sendRequest{
		ConversationID: wireID(conversationID),
		Content:        text,
	})
	if err != nil {
		return models.SendResult{}, err
	}

	res, err := parseSendResponse(body)
	if err != nil {
		return models.SendResult{}, err
	}
	if res.ConversationID == "" {
		res.ConversationID = conversationID
	}
	if res.ConversationID == "" {
		return models.SendResult{}, apierrors.NewParseError("missing conversation id", PathConversationID)
	}
	return res, nil
}

func parseSendResponse(body []byte) (models.SendResult, error) {
	if !gjson.ValidBytes(body) {
		return models.SendResult{}, apierrors.NewParseError("send response is not JSON", "")
	}
	root := unwrapEnvelope(gjson.ParseBytes(body))
	if !root.IsObject() {
		return models.SendResult{}, apierrors.NewParseError("send response is not an object", "")
	}

	return models.SendResult{
		ConversationID: idString(root.Get(PathConversationID)),
		MessageID:      idString(root.Get(PathMessageID)),
		Answer:         root.Get(PathAnswer).String(),
	}, nil
}

// unwrapEnvelope returns the data member of a {code, message, data} envelope,
// or the value itself.
func unwrapEnvelope(v gjson.Result) gjson.Result {
	if v.IsObject() {
		if data := v.Get(PathEnvelopeData); data.Exists() && (data.IsObject() || data.IsArray()) {
			return data
		}
	}
	return v
}

// wireID sends numeric ids as JSON numbers and an empty id as null
func wireID(id string) any {
	if id == "" {
		return nil
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func idString(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return v.String()
}
