package bus

import "github.com/inkharmony/inkharmony/pkg/domain"

// Convenience send helpers: construct a correctly stamped message and put it
// on the bus in one call. These are the primary API agents use.

// SendTask sends a task message and returns its id.
func (b *MessageBus) SendTask(sender, recipient domain.Role, taskType domain.TaskType, content domain.Payload, parentID string) (string, error) {
	msg, err := NewTask(sender, recipient, taskType, content, parentID)
	if err != nil {
		return "", err
	}
	return b.Send(msg), nil
}

// SendResult sends a result answering parentID and returns its id.
func (b *MessageBus) SendResult(sender, recipient domain.Role, content domain.Payload, parentID string, metadata domain.Payload) (string, error) {
	msg, err := NewResult(sender, recipient, content, parentID, metadata)
	if err != nil {
		return "", err
	}
	return b.Send(msg), nil
}

// SendFeedback sends feedback on the result identified by parentID.
func (b *MessageBus) SendFeedback(sender, recipient domain.Role, feedback, parentID string, rating int) (string, error) {
	msg, err := NewFeedback(sender, recipient, feedback, parentID, rating)
	if err != nil {
		return "", err
	}
	return b.Send(msg), nil
}

// SendQuery sends a query message and returns its id.
func (b *MessageBus) SendQuery(sender, recipient domain.Role, queryType string, content domain.Payload) string {
	return b.Send(NewQuery(sender, recipient, queryType, content))
}

// SendResponse sends a response to the query identified by parentID.
func (b *MessageBus) SendResponse(sender, recipient domain.Role, content domain.Payload, parentID string) (string, error) {
	msg, err := NewResponse(sender, recipient, content, parentID)
	if err != nil {
		return "", err
	}
	return b.Send(msg), nil
}

// SendStatus sends a status update and returns its id.
func (b *MessageBus) SendStatus(sender, recipient domain.Role, content domain.Payload) string {
	return b.Send(NewStatus(sender, recipient, content))
}

// SendError sends an error notification and returns its id.
func (b *MessageBus) SendError(sender, recipient domain.Role, errText, parentID string, details domain.Payload) string {
	return b.Send(NewError(sender, recipient, errText, parentID, details))
}
