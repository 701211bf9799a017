package relay

import "strings"

// AttachmentKind buckets an attachment by its declared content type.
type AttachmentKind string

const (
	KindAudio AttachmentKind = "audio"
	KindImage AttachmentKind = "image"
	KindVideo AttachmentKind = "video"
	KindFile  AttachmentKind = "file"
)

// Attachment describes one uploaded file, classified for the webhook.
type Attachment struct {
	Filename    string         `json:"filename"`
	URL         string         `json:"url"`
	Size        int            `json:"size"`
	ContentType string         `json:"content_type"`
	Kind        AttachmentKind `json:"type"`
}

// Classify builds an Attachment from a gateway file descriptor. The
// kind comes purely from the declared content-type prefix; anything
// unrecognized (or an absent content type) is a plain file.
func Classify(filename, url string, size int, contentType string) Attachment {
	kind := KindFile
	switch {
	case strings.HasPrefix(contentType, "audio/"):
		kind = KindAudio
	case strings.HasPrefix(contentType, "image/"):
		kind = KindImage
	case strings.HasPrefix(contentType, "video/"):
		kind = KindVideo
	}

	return Attachment{
		Filename:    filename,
		URL:         url,
		Size:        size,
		ContentType: contentType,
		Kind:        kind,
	}
}

// Placeholder returns the message text substituted when a user sends
// attachments without any text.
func Placeholder(kind AttachmentKind) string {
	switch kind {
	case KindAudio:
		return "[Audio enviado]"
	case KindImage:
		return "[Imagen enviada]"
	case KindVideo:
		return "[Video enviado]"
	default:
		return "[Archivo enviado]"
	}
}
