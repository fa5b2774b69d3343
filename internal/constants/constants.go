package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixWeather = "weather:snapshot:"
)

const (
	DefaultAdvisoryTopic = "advisory_notifications"
	DefaultMongoDBName   = "agroadvisor"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	DefaultSnapshotTTLSeconds = 6 * 3600
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

// Growth stage day thresholds, counted from crop listing creation.
const (
	SeedlingMaxDays   = 15
	VegetativeMaxDays = 60
	FloweringMaxDays  = 90
	FruitingMaxDays   = 120
	MaturationMaxDays = 140
)

const (
	DefaultCycleSchedule = "0 * * * *"
	DefaultPollSchedule  = "*/15 * * * *"
)

const (
	ChannelSMS   = "SMS"
	ChannelPush  = "PUSH"
	ChannelEmail = "EMAIL"
)
