package llm

// Conversation is an append-only message log. Append never mutates the
// receiver, so earlier values stay valid after later turns are added.
type Conversation struct {
	messages []Message
}

func NewConversation(messages ...Message) Conversation {
	return Conversation{}.Append(messages...)
}

func (c Conversation) Append(messages ...Message) Conversation {
	out := make([]Message, len(c.messages), len(c.messages)+len(messages))
	copy(out, c.messages)
	return Conversation{messages: append(out, messages...)}
}

// Messages returns a copy of the log.
func (c Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c Conversation) Len() int {
	return len(c.messages)
}
