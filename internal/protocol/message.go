// Package protocol defines the wire format for the collaborative session:
// a typed JSON envelope framed by a 4-byte big-endian length prefix.
package protocol

// Kind identifies the message type carried by a frame.
type Kind string

const (
	KindTextUpdate     Kind = "TEXT_UPDATE"     // full document replacement
	KindRequestControl Kind = "REQ_CONTROL"     // client asks to become the writer
	KindGrantControl   Kind = "GRANT_CONTROL"   // host hands over the pen
	KindRevokeControl  Kind = "REVOKE_CONTROL"  // host takes the pen back
	KindDeclineControl Kind = "DECLINE_CONTROL" // host refuses a request
)

// Message is one unit of the session protocol. Content is the full document
// text for TEXT_UPDATE and empty for the four control kinds.
type Message struct {
	Type    Kind   `json:"type"`
	Content string `json:"content"`
}

// Known reports whether k is one of the five protocol kinds. Frames with an
// unknown kind still decode; the session layer logs and drops them.
func (k Kind) Known() bool {
	switch k {
	case KindTextUpdate, KindRequestControl, KindGrantControl,
		KindRevokeControl, KindDeclineControl:
		return true
	}
	return false
}

// TextUpdate builds a document-replacement message.
func TextUpdate(text string) Message {
	return Message{Type: KindTextUpdate, Content: text}
}

// Control builds an empty-content control message of the given kind.
func Control(kind Kind) Message {
	return Message{Type: kind}
}
