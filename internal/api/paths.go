package api

// GJSON paths for extracting values from backend responses.
const (
	// Some deployments wrap every payload as {code, message, data}
	PathEnvelopeData = "data"

	// Send response
	PathConversationID = "conversationId"
	PathMessageID      = "messageId"
	PathAnswer         = "answer"

	// History message, relative to one array element
	PathMsgID        = "id"
	PathMsgRole      = "role"
	PathMsgContent   = "content"
	PathMsgCreatedAt = "createdAt"

	// Alternative keys some backend versions use
	PathMsgAltRole      = "senderType"
	PathMsgAltCreatedAt = "createTime"

	// Alternative container keys for lists
	PathListMessages      = "messages"
	PathListConversations = "conversations"
	PathListRecords       = "records"

	// Conversation summary, relative to one array element
	PathConvID        = "id"
	PathConvTitle     = "title"
	PathConvCreatedAt = "createdAt"
	PathConvUpdatedAt = "updatedAt"
)
