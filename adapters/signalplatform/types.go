package signalplatform

// Envelope is the top-level structure signal-cli pushes for each
// received event. Exactly one of the message-type fields is non-nil.
type Envelope struct {
	Source       string `json:"source"`
	SourceNumber string `json:"sourceNumber"`
	SourceName   string `json:"sourceName"`
	SourceDevice int    `json:"sourceDevice"`
	Timestamp    int64  `json:"timestamp"`

	DataMessage *DataMessage `json:"dataMessage,omitempty"`
}

// DataMessage is a normal text message, or a reaction/attachment riding
// along with one.
type DataMessage struct {
	Timestamp   int64        `json:"timestamp"`
	Message     string       `json:"message"`
	GroupInfo   *GroupInfo   `json:"groupInfo,omitempty"`
	Reaction    *Reaction    `json:"reaction,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Reaction is an emoji reaction to a previously sent message. It is
// surfaced to the matcher as a callback query: the emoji is the
// callback data, the reacted-to message's timestamp is the origin
// message ID.
type Reaction struct {
	Emoji               string `json:"emoji"`
	TargetAuthor        string `json:"targetAuthor"`
	TargetSentTimestamp int64  `json:"targetSentTimestamp"`
	IsRemove            bool   `json:"isRemove"`
}

// Attachment describes a file attached to a data message.
type Attachment struct {
	ContentType string `json:"contentType"`
	Filename    string `json:"filename,omitempty"`
	ID          string `json:"id"`
	Size        int64  `json:"size"`
}

// GroupInfo identifies the group a message was sent to. Groups are not
// resolved to individual conversations; the group ID itself becomes
// the conversation key.
type GroupInfo struct {
	GroupID string `json:"groupId"`
}

// receiveNotification is the JSON-RPC notification payload for method
// "receive" pushed by signal-cli.
type receiveNotification struct {
	Envelope Envelope `json:"envelope"`
}

// sendResult is the response payload from a successful "send" RPC call.
type sendResult struct {
	Timestamp int64 `json:"timestamp"`
}
