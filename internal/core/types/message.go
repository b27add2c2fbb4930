package types

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

type Message struct {
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`

	// Complete is set once the response stream for this message ended normally.
	Complete bool `json:"complete"`
}

// Clone returns a copy that shares no citation storage with m.
func (m Message) Clone() Message {
	out := m
	out.Citations = append([]Citation{}, m.Citations...)
	return out
}

// RawRef is a grounding reference as delivered by the model service. The URI
// may be empty, in which case it never becomes a Citation.
type RawRef struct {
	URI   string
	Title string
}

type Grounding struct {
	Refs []RawRef
}

// Fragment is one incremental unit of a streamed response. A nil Grounding
// means the fragment carried no grounding metadata at all, which is distinct
// from metadata with zero references.
type Fragment struct {
	TextDelta string
	Grounding *Grounding
}

// CitationsFromRefs keeps the references that carry a locator, in the order
// they appear. Duplicates are not collapsed.
func CitationsFromRefs(refs []RawRef) []Citation {
	citations := make([]Citation, 0, len(refs))
	for _, ref := range refs {
		if ref.URI == "" {
			continue
		}
		citations = append(citations, Citation{URI: ref.URI, Title: ref.Title})
	}
	return citations
}
