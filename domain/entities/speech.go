package entities

// TTSItemKind identifies how a speech queue item was produced
type TTSItemKind string

const (
	// TTSKindStreamingChunk is a sentence-ish fragment cut from a streaming reply
	TTSKindStreamingChunk TTSItemKind = "streaming-chunk"
	// TTSKindFullMessage is a complete message or the unspoken tail of a reply
	TTSKindFullMessage TTSItemKind = "full-message"
)

// TTSItemState models the lifecycle of a speech queue item
type TTSItemState string

const (
	TTSStateQueued      TTSItemState = "queued"
	TTSStatePrefetching TTSItemState = "prefetching"
	TTSStateReady       TTSItemState = "ready"
	TTSStatePlaying     TTSItemState = "playing"
	TTSStateDone        TTSItemState = "done"
	TTSStateFailed      TTSItemState = "failed"
)
