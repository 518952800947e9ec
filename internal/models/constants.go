// Package models contains data types and constants for the chat backend API.
package models

// Endpoint paths, relative to the configured base URL
const (
	PathChat              = "/api/chat"
	PathConversations     = "/api/conversations"
	PathStreamDefault     = "/api/doChatWithManus"
	PathWebSocketDefault  = "/ws/chat"
	DefaultHistoryPage    = 50
	DefaultConversationsN = 20
)

// ConversationPath returns the path of a single conversation
func ConversationPath(id string) string {
	return PathConversations + "/" + id
}

// MessagesPath returns the history path of a conversation
func MessagesPath(id string) string {
	return ConversationPath(id) + "/messages"
}

// DeleteCompatPath is the POST fallback used when proxies reject DELETE
func DeleteCompatPath(id string) string {
	return ConversationPath(id) + "/delete"
}

// DefaultHeaders returns headers sent with every JSON request
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
		"User-Agent":   "agentchat/0.1",
	}
}
