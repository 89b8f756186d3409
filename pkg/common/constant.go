package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyHRLogDir string = "HR_LOG_DIR"

	EnvKeyHRDBType string = "HR_DB_TYPE"
	EnvKeyHRDbPath string = "HR_DB_PATH"
	EnvKeyHRDbDSN  string = "HR_DB_DSN"

	EnvKeyHRHttpHostPort    string = "HR_HTTP_HOST_PORT"
	EnvKeyHRGrpcHostPort    string = "HR_GRPC_HOST_PORT"
	EnvKeyHRMetricsHostPort string = "HR_METRICS_HOST_PORT"

	EnvKeyHRDefaultRate  string = "HR_DEFAULT_RATE"
	EnvKeyHRDefaultBurst string = "HR_DEFAULT_BURST"
	EnvKeyHRPageSize     string = "HR_PAGE_SIZE"

	EnvKeyHRBroker      string = "HR_BROKER"
	EnvKeyHRBrokerURL   string = "HR_BROKER_URL"
	EnvKeyHRTopic       string = "HR_TOPIC"
	EnvKeyHRBrokerCreds string = "HR_BROKER_CREDS"

	EnvKeyHRNatsEmbedded string = "HR_NATS_EMBEDDED"
	EnvKeyHRNatsStoreDir string = "HR_NATS_STORE_DIR"
	EnvKeyHRNatsPort     string = "HR_NATS_PORT"

	EnvKeyHRConsumerName    string = "HR_CONSUMER_NAME"
	EnvKeyHRConsumerWorkers string = "HR_CONSUMER_WORKERS"
	EnvKeyHRNakDelay        string = "HR_NAK_DELAY"
	EnvKeyHRMaxDeliver      string = "HR_MAX_DELIVER"

	BrokerNATS  string = "nats"
	BrokerRedis string = "redis"

	DefaultTopic        string = "heartrate.hr"
	DefaultStreamName   string = "HEARTRATE"
	DefaultConsumerName string = "heartrate-recorder"
	DefaultPageSize     int    = 100
	MaxPageSize         int    = 1000

	LoggerNameProducer       string = "producer"
	LoggerNameConsumer       string = "consumer"
	LoggerNameHeartRateCore  string = "heartrate_core"
	LoggerNameRestfulServer  string = "restful_server"
	LoggerNameGrpcServer     string = "grpc_server"
	LoggerNameChannel        string = "channel"
	LoggerFieldCategory      string = "category"
	LoggerCategoryReading    string = "reading"
	LoggerCategoryQuery      string = "query"
	LoggerCategoryNats       string = "nats"
	LoggerCategoryRedis      string = "redis"
	LoggerCategoryLocal      string = "local"
	LoggerCategorySource     string = "source"
	LoggerCategoryIngest     string = "ingest"
	LoggerCategoryDelivery   string = "delivery"
	LoggerCategoryWorkerPool string = "worker_pool"
)
