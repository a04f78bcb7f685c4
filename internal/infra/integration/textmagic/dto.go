package textmagic

type sendMessageRequest struct {
	Text   string `json:"text"`
	Phones string `json:"phones"`
	From   string `json:"from,omitempty"`
}

type sendMessageResponse struct {
	ID   int    `json:"id"`
	Href string `json:"href"`
}

// InboundMessage is the shape TextMagic posts to the inbound webhook. Some
// payloads nest it under "message", some send it flat; the handler copes
// with both.
type InboundMessage struct {
	Sender   string `json:"sender"`
	From     string `json:"from"`
	Receiver string `json:"receiver"`
	To       string `json:"to"`
	Text     string `json:"text"`
	Body     string `json:"body"`
}

func (m InboundMessage) FromNumber() string {
	if m.Sender != "" {
		return m.Sender
	}
	return m.From
}

func (m InboundMessage) ToNumber() string {
	if m.Receiver != "" {
		return m.Receiver
	}
	return m.To
}

func (m InboundMessage) MessageText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Body
}
