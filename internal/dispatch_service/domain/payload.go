package domain

// PayloadKind discriminates the outbound payload variants.
type PayloadKind string

const (
	KindText     PayloadKind = "text"
	KindImage    PayloadKind = PayloadKind(MediaImage)
	KindVideo    PayloadKind = PayloadKind(MediaVideo)
	KindAudio    PayloadKind = PayloadKind(MediaAudio)
	KindDocument PayloadKind = PayloadKind(MediaDocument)
)

// OutboundPayload is either a TextPayload or a MediaPayload.
type OutboundPayload interface {
	Kind() PayloadKind
	sealed()
}

// TextPayload is a plain text message.
type TextPayload struct {
	Body string
}

func (TextPayload) Kind() PayloadKind { return KindText }
func (TextPayload) sealed()           {}

// MediaPayload references an uploaded attachment. Handle is empty until the
// upload phase has produced one.
type MediaPayload struct {
	Category MediaCategory
	Handle   string
	Caption  string
}

func (p MediaPayload) Kind() PayloadKind { return PayloadKind(p.Category) }
func (MediaPayload) sealed()             {}

// WithHandle returns a copy carrying the provider media handle.
func (p MediaPayload) WithHandle(handle string) MediaPayload {
	p.Handle = handle
	return p
}
