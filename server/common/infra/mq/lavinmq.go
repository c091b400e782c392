package mq

import amqp "github.com/rabbitmq/amqp091-go"

const ChatEventsExchange = "chat.events"

func NewConnection(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

// DeclareChatExchange opens a channel on conn and declares the durable topic
// exchange chat events are published to.
func DeclareChatExchange(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(ChatEventsExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}
