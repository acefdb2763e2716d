package proto

// RPC is one newline-delimited frame on a floodsub stream. A frame may
// carry subscription changes, published messages, or both.
type RPC struct {
	Subscriptions []SubOpts  `json:"subscriptions,omitempty"`
	Publish       []*Message `json:"publish,omitempty"`
}

// SubOpts announces that the sender joined or left a topic.
type SubOpts struct {
	Subscribe bool   `json:"subscribe"`
	Topic     string `json:"topic"`
}

// Message is a published gossip payload. From is the original publisher,
// not the peer that relayed it.
type Message struct {
	From   string   `json:"from"`
	Data   []byte   `json:"data"`
	Seqno  string   `json:"seqno"`
	Topics []string `json:"topics"`
}

// ID identifies a message for de-duplication.
func (m *Message) ID() string {
	return m.From + "/" + m.Seqno
}

// HasTopic reports whether m was published on topic.
func (m *Message) HasTopic(topic string) bool {
	for _, t := range m.Topics {
		if t == topic {
			return true
		}
	}
	return false
}
