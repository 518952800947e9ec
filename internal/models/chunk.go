package models

import (
	"strings"

	"github.com/tidwall/gjson"
)

// DoneSentinel is the bare-string payload that terminates a stream
const DoneSentinel = "done"

// ChunkKind tags a stream chunk
type ChunkKind int

const (
	// ChunkUnknown is a payload shape this client does not understand.
	// It is carried through and ignored.
	ChunkUnknown ChunkKind = iota
	ChunkStart
	ChunkDelta
	ChunkDone
	ChunkError
)

func (k ChunkKind) String() string {
	switch k {
	case ChunkStart:
		return "start"
	case ChunkDelta:
		return "delta"
	case ChunkDone:
		return "done"
	case ChunkError:
		return "error"
	default:
		return "unknown"
	}
}

// Chunk is a single event of the assistant stream
type Chunk struct {
	Kind ChunkKind
	Text string
	// Code is set on error chunks
	Code string
}

// StartChunk returns a start chunk
func StartChunk() Chunk { return Chunk{Kind: ChunkStart} }

// DeltaChunk returns a delta chunk carrying text
func DeltaChunk(text string) Chunk { return Chunk{Kind: ChunkDelta, Text: text} }

// DoneChunk returns a terminal chunk
func DoneChunk() Chunk { return Chunk{Kind: ChunkDone} }

// IsTerminal reports whether the chunk ends the stream
func (c Chunk) IsTerminal() bool {
	return c.Kind == ChunkDone || c.Kind == ChunkError
}

// ParseChunk normalizes a raw event payload into a Chunk.
//
// Producers send either a tagged JSON object ({"type":"delta","content":"Hi"})
// or a bare string. A bare string equal to DoneSentinel is the terminal
// signal; any other bare string, whitespace included, is delta text.
func ParseChunk(data string) Chunk {
	if data == "" {
		return Chunk{Kind: ChunkUnknown}
	}
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return DeltaChunk(data)
	}

	if !gjson.Valid(trimmed) {
		return rawChunk(data)
	}

	parsed := gjson.Parse(trimmed)
	switch {
	case parsed.Type == gjson.String:
		return rawChunk(parsed.String())
	case parsed.IsObject():
		return taggedChunk(parsed)
	case parsed.IsArray():
		return Chunk{Kind: ChunkUnknown}
	default:
		// numbers and booleans are plain text that happened to be valid JSON
		return rawChunk(data)
	}
}

func rawChunk(s string) Chunk {
	if s == DoneSentinel {
		return DoneChunk()
	}
	return DeltaChunk(s)
}

func taggedChunk(obj gjson.Result) Chunk {
	switch strings.ToLower(obj.Get("type").String()) {
	case "start":
		return StartChunk()
	case "delta":
		text := obj.Get("content")
		if !text.Exists() {
			text = obj.Get("text")
		}
		return DeltaChunk(text.String())
	case "done":
		return DoneChunk()
	case "error":
		return Chunk{
			Kind: ChunkError,
			Code: obj.Get("code").String(),
			Text: obj.Get("message").String(),
		}
	default:
		return Chunk{Kind: ChunkUnknown}
	}
}
