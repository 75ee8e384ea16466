package config

const (
	// TopicUsageIncrement is the NSQ topic carrying queued usage-count increments.
	TopicUsageIncrement = "usage.increment"

	// ChannelUsageWorker is the consumer channel of the usage worker.
	ChannelUsageWorker = "usage-worker"
)
