/*
Package rabbitmq provides a RabbitMQ RPC adapter for the mediator.
Servers consume a request queue and answer on each message's reply_to with its
correlation_id; clients publish with the amq.rabbitmq.reply-to pseudo queue and
match replies to pending calls. Header propagation is available via a
mediator.HeaderPropagator.
*/
package rabbitmq
