package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkharmony/inkharmony/pkg/domain"
)

// Kind classifies a message on the bus.
type Kind string

const (
	KindTask     Kind = "task"
	KindResult   Kind = "result"
	KindFeedback Kind = "feedback"
	KindQuery    Kind = "query"
	KindResponse Kind = "response"
	KindStatus   Kind = "status"
	KindError    Kind = "error"
)

// AllKinds returns every message kind.
func AllKinds() []Kind {
	return []Kind{KindTask, KindResult, KindFeedback, KindQuery, KindResponse, KindStatus, KindError}
}

// Valid returns true if the kind is recognized.
func (k Kind) Valid() bool {
	for _, kk := range AllKinds() {
		if kk == k {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Reply kinds resolve an Await on their parent message.
func (k Kind) isReply() bool {
	return k == KindResult || k == KindResponse || k == KindError
}

// Well-known metadata keys.
const (
	MetaTaskType  = "task_type"
	MetaQueryType = "query_type"
	MetaBookID    = "book_id"
	MetaRating    = "rating"
)

// Message is an immutable record of one directed communication between agents.
// Never mutate a message after it has been sent.
type Message struct {
	ID        string         `json:"message_id"`
	Kind      Kind           `json:"kind"`
	Sender    domain.Role    `json:"sender"`
	Recipient domain.Role    `json:"recipient"`
	Content   domain.Payload `json:"content,omitempty"`
	Metadata  domain.Payload `json:"metadata,omitempty"`
	ParentID  string         `json:"parent_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TaskType returns the task type carried in metadata, if any.
func (m *Message) TaskType() domain.TaskType {
	return domain.TaskType(m.Metadata.GetString(MetaTaskType))
}

// BookID returns the book id carried in metadata, if any.
func (m *Message) BookID() string {
	return m.Metadata.GetString(MetaBookID)
}

func newMessage(kind Kind, sender, recipient domain.Role, content, metadata domain.Payload, parentID string) *Message {
	if metadata == nil {
		metadata = make(domain.Payload)
	}
	return &Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Sender:    sender,
		Recipient: recipient,
		Content:   content,
		Metadata:  metadata,
		ParentID:  parentID,
		Timestamp: time.Now().UTC(),
	}
}

// NewTask builds a task message. The task type is mandatory and must be a
// known member of the closed enum.
func NewTask(sender, recipient domain.Role, taskType domain.TaskType, content domain.Payload, parentID string) (*Message, error) {
	if taskType == "" {
		return nil, ErrMissingTaskType
	}
	if !taskType.Valid() {
		return nil, ErrUnknownTaskType
	}
	msg := newMessage(KindTask, sender, recipient, content, nil, parentID)
	msg.Metadata.Set(MetaTaskType, taskType.String())
	return msg, nil
}

// NewResult builds a result message answering the task identified by parentID.
func NewResult(sender, recipient domain.Role, content domain.Payload, parentID string, metadata domain.Payload) (*Message, error) {
	if parentID == "" {
		return nil, ErrMissingParent
	}
	return newMessage(KindResult, sender, recipient, content, metadata, parentID), nil
}

// NewFeedback builds a feedback message on the result identified by parentID.
// A rating of zero means unrated.
func NewFeedback(sender, recipient domain.Role, feedback string, parentID string, rating int) (*Message, error) {
	if parentID == "" {
		return nil, ErrMissingParent
	}
	msg := newMessage(KindFeedback, sender, recipient, domain.Payload{"feedback": feedback}, nil, parentID)
	if rating > 0 {
		msg.Metadata.Set(MetaRating, rating)
	}
	return msg, nil
}

// NewQuery builds a query message. queryType names what is being asked.
func NewQuery(sender, recipient domain.Role, queryType string, content domain.Payload) *Message {
	msg := newMessage(KindQuery, sender, recipient, content, nil, "")
	msg.Metadata.Set(MetaQueryType, queryType)
	return msg
}

// NewResponse builds a response to the query identified by parentID.
func NewResponse(sender, recipient domain.Role, content domain.Payload, parentID string) (*Message, error) {
	if parentID == "" {
		return nil, ErrMissingParent
	}
	return newMessage(KindResponse, sender, recipient, content, nil, parentID), nil
}

// NewStatus builds a status update message.
func NewStatus(sender, recipient domain.Role, content domain.Payload) *Message {
	return newMessage(KindStatus, sender, recipient, content, nil, "")
}

// NewError builds an error notification. parentID may be empty when the error
// is not tied to a particular message.
func NewError(sender, recipient domain.Role, errText string, parentID string, details domain.Payload) *Message {
	return newMessage(KindError, sender, recipient, domain.Payload{"error": errText}, details, parentID)
}

// Filter selects history messages by exact field match. Zero-valued fields
// are ignored; a zero filter matches everything.
type Filter struct {
	ID        string
	Sender    domain.Role
	Recipient domain.Role
	Kind      Kind
	ParentID  string
}

func (f Filter) matches(m *Message) bool {
	if f.ID != "" && m.ID != f.ID {
		return false
	}
	if f.Sender != "" && m.Sender != f.Sender {
		return false
	}
	if f.Recipient != "" && m.Recipient != f.Recipient {
		return false
	}
	if f.Kind != "" && m.Kind != f.Kind {
		return false
	}
	if f.ParentID != "" && m.ParentID != f.ParentID {
		return false
	}
	return true
}

// BusError is a typed error for message construction and await failures.
type BusError string

func (e BusError) Error() string { return string(e) }

const (
	ErrMissingTaskType BusError = "task message requires a task_type"
	ErrUnknownTaskType BusError = "unknown task_type"
	ErrMissingParent   BusError = "message requires a parent_id"
	ErrBusClosed       BusError = "message bus is closed"
)
