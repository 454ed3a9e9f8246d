package chat

// Topic names one event channel. Mutations publish to exactly one topic and
// live clients subscribe per topic.
type Topic string

const (
	TopicMessageAdded Topic = "message.added"
	TopicChatAdded    Topic = "chat.added"
	TopicChatRemoved  Topic = "chat.removed"
)

// Topics lists every channel a subscriber can ask for.
var Topics = []Topic{TopicMessageAdded, TopicChatAdded, TopicChatRemoved}

type Event interface {
	Topic() Topic
}

type MessageAdded struct {
	Message Message `json:"message"`
}

func (MessageAdded) Topic() Topic { return TopicMessageAdded }

type ChatAdded struct {
	Chat Chat `json:"chat"`
}

func (ChatAdded) Topic() Topic { return TopicChatAdded }

// ChatRemoved carries the pre-delete snapshot: by the time a subscriber sees
// the event the rows are gone, so membership can only be decided from the
// snapshot's participant list.
type ChatRemoved struct {
	ChatID int64 `json:"chatId"`
	Chat   Chat  `json:"chat"`
}

func (ChatRemoved) Topic() Topic { return TopicChatRemoved }
