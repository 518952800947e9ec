package chat

import "github.com/diogo/agentchat/internal/models"

// Accumulate folds chunk into content. Only delta chunks change the text;
// start, terminal and unrecognized chunks return content unchanged.
func Accumulate(content string, chunk models.Chunk) string {
	if chunk.Kind != models.ChunkDelta || chunk.Text == "" {
		return content
	}
	return content + chunk.Text
}
