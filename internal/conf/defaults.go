package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/cedar-go/internal/inference"
)

// setDefaultConfig registers default values on v. They mirror config.yaml so
// that keys missing from an older file still resolve.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.workdir", ".")

	v.SetDefault("classes.file", "classes.tsv")
	v.SetDefault("classes.watch", true)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.file", "tracking.tsv")
	v.SetDefault("audit.threshold", 500)
	v.SetDefault("audit.db.enabled", false)
	v.SetDefault("audit.db.driver", "sqlite")
	v.SetDefault("audit.db.path", "audit.db")
	v.SetDefault("audit.db.host", "localhost")
	v.SetDefault("audit.db.port", 3306)
	v.SetDefault("audit.db.username", "cedar")
	v.SetDefault("audit.db.password", "")
	v.SetDefault("audit.db.database", "cedar")

	v.SetDefault("review.interval", 2*time.Second)
	v.SetDefault("review.autoassign", false)

	v.SetDefault("inference.enabled", false)
	v.SetDefault("inference.endpoint", "http://127.0.0.1:8000")
	v.SetDefault("inference.model", inference.DefaultModel)
	v.SetDefault("inference.timeout", 5*time.Minute)
	v.SetDefault("inference.cachettl", 10*time.Minute)
	v.SetDefault("inference.ratelimit", 0.5)
	v.SetDefault("inference.burst", 1)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/cedar.log")
	v.SetDefault("logging.file_output.level", "debug")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9090")
}
