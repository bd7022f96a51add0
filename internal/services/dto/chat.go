package dto

// SendMessageRequest carries one chat input over the REST surface.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// PresenceResponse lists who is online on a topic.
type PresenceResponse struct {
	Topic  string   `json:"topic"`
	Online []string `json:"online"`
}
