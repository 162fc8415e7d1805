package domain

// SourceKind tells where a citation came from.
type SourceKind string

const (
	SourceWeb SourceKind = "web"
	SourceMap SourceKind = "map"
)

// Citation is the renderable form of one grounding chunk.
type Citation struct {
	Kind  SourceKind `json:"kind"`
	URI   string     `json:"uri"`
	Title string     `json:"title"`
}

// Message represents one turn in the advisor timeline (user or assistant).
// Messages are never edited after they are appended to a session.
type Message struct {
	ID        MessageID
	Role      Role
	Text      string
	Citations []Citation
	CreatedAt Timestamp

	// Mode the turn was sent (user) or answered (assistant) under.
	Mode Mode
}
