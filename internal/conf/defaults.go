// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultReplicateBaseURL = "https://api.replicate.com"
	DefaultReplicateModel   = "black-forest-labs/flux-schnell"
	DefaultReplicateVersion = "5599ed30703defd1d160a25a63321b4dec97101d98b4674bcc56e41f62f35637"
	DefaultSQLitePath       = "data/database.sqlite"
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/iconforge.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("webserver.host", "")
	viper.SetDefault("webserver.port", 3000)
	viper.SetDefault("webserver.corsorigin", "*")
	viper.SetDefault("webserver.bodylimit", "10M")
	viper.SetDefault("webserver.staticdir", "")
	viper.SetDefault("webserver.shutdowntimeout", 10*time.Second)
	viper.SetDefault("webserver.ratelimit.enabled", true)
	viper.SetDefault("webserver.ratelimit.windowms", 60000)
	viper.SetDefault("webserver.ratelimit.maxrequests", 10)

	viper.SetDefault("replicate.apitoken", "")
	viper.SetDefault("replicate.baseurl", DefaultReplicateBaseURL)
	viper.SetDefault("replicate.model", DefaultReplicateModel)
	viper.SetDefault("replicate.version", DefaultReplicateVersion)
	viper.SetDefault("replicate.pollinterval", time.Second)
	viper.SetDefault("replicate.timeout", 120*time.Second)

	viper.SetDefault("cache.ttl", time.Hour)
	viper.SetDefault("cache.cleanupinterval", 10*time.Minute)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("sqlite.enabled", true)
	viper.SetDefault("sqlite.path", DefaultSQLitePath)

	viper.SetDefault("mysql.enabled", false)
	viper.SetDefault("mysql.username", "")
	viper.SetDefault("mysql.password", "")
	viper.SetDefault("mysql.database", "iconforge")
	viper.SetDefault("mysql.host", "localhost")
	viper.SetDefault("mysql.port", "3306")

	viper.SetDefault("iconset.count", 4)
	viper.SetDefault("iconset.delay", 2*time.Second)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "iconforge")
	viper.SetDefault("mqtt.topicprefix", "iconforge")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.debug", false)
}
