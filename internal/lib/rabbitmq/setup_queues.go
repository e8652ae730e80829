// Package rabbitmq настраивает обмен и очередь событий подписок и
// реализует публикацию сообщений в RabbitMQ. Потребляет события внешний
// сервис уведомлений, ядро верификации только публикует.
package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Exchange — обмен, в который публикуются события подписок.
const Exchange = "subscriptions"

// Queue — очередь событий изменения подписок.
const Queue = "subscriptions.changed"

// Connect открывает соединение с RabbitMQ по URL.
func Connect(url string) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return conn, nil
}

// SetupChannel создаёт канал и объявляет обмен, очередь и привязку для
// событий подписок.
func SetupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = ch.ExchangeDeclare(
		Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	_, err = ch.QueueDeclare(
		Queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	err = ch.QueueBind(Queue, "changed", Exchange, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ch, err
}
