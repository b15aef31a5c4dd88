// Package bus implements the Chat Hub: the bounded inbound/outbound message
// queues that decouple chat channels from the agent loop.
package bus

type Channel string

const (
	ChannelTelegram  Channel = "telegram"
	ChannelSlack     Channel = "slack"
	ChannelWS        Channel = "ws"
	ChannelCLI       Channel = "cli"
	ChannelCron      Channel = "cron"
	ChannelHeartbeat Channel = "heartbeat"
	ChannelSystem    Channel = "system"
)
