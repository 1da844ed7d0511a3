package memory

import "time"

// Role identifies who produced a [TranscriptEntry].
type Role string

// Roles stored in the journal.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one utterance or reply written to the session journal.
type TranscriptEntry struct {
	// ID is a unique identifier for the entry (a UUID). Stores assign one when
	// it is empty.
	ID string

	// Role is who spoke.
	Role Role

	// Text is what was heard (user) or what was spoken aloud (assistant).
	Text string

	// RawText is the unprocessed form: the reply before speech cleaning for
	// assistant entries. Empty when identical to Text.
	RawText string

	// Decision is the attention decision taken for a user entry ("woken",
	// "stopped", "converse"). Empty for assistant entries.
	Decision string

	// Interrupted is set on assistant entries whose playback was cut off by a
	// stop command.
	Interrupted bool

	// Timestamp is when the entry was recorded.
	Timestamp time.Time

	// Duration is the length of the utterance or of the synthesized reply.
	Duration time.Duration
}
