package config

import (
	"fmt"
	"time"
)

// Configuration carries the environment the deployment manifest injects into
// the web container, plus the path of the optional YAML application config.
type Configuration struct {
	ApplicationConfigFileYmlPath string `env:"APP_CONFIG_FILE_YML_PATH" envDefault:"application.yml"`

	DatabaseURI  string `env:"DATABASE_URI" envDefault:"localhost"`
	DatabasePort int    `env:"DATABASE_PORT" envDefault:"27017"`
	DatabaseName string `env:"DATABASE_NAME" envDefault:"db"`
	ReplicaSet   string `env:"REPLICA_SET"`

	ServerPort int `env:"SERVER_PORT" envDefault:"8080"`
}

// MongoURI builds the connection string. Naming the replica set lets the
// driver run multi-document transactions.
func (c Configuration) MongoURI() string {
	uri := fmt.Sprintf("mongodb://%s:%d/", c.DatabaseURI, c.DatabasePort)
	if c.ReplicaSet != "" {
		uri += "?replicaSet=" + c.ReplicaSet
	}
	return uri
}

// ApplicationConfiguration Must use full names for `sigs.k8s.io/yaml`
type ApplicationConfiguration struct {
	Server     Server
	Prometheus Prometheus
	Tracing    Tracing
	Logging    Logging
	Mongo      Mongo
	Lock       Lock
	Cache      Cache
	Defaults   Defaults
}

type Logging struct {
	Level string
}

type Server struct {
	Port int
}

type Prometheus struct {
	Path string
}

type Tracing struct {
	Enabled         bool
	Endpoint        string
	SamplerFraction float64
}

type Mongo struct {
	ConnectTimeoutMillis int64 `json:"connectTimeout"`
	PingTimeoutMillis    int64 `json:"pingTimeout"`
}

type Lock struct {
	ExpirySeconds int64 `json:"expiry"`
	WaitSeconds   int64 `json:"wait"`
}

type Cache struct {
	TTLSeconds           int64 `json:"ttl"`
	SweepIntervalSeconds int64 `json:"sweepInterval"`
}

type Defaults struct {
	LogResponses    bool
	PrettyPrintJson bool
}

func (m Mongo) ConnectTimeout() time.Duration {
	return millisOr(m.ConnectTimeoutMillis, 10*time.Second)
}

func (m Mongo) PingTimeout() time.Duration {
	return millisOr(m.PingTimeoutMillis, 2*time.Second)
}

func (l Lock) Expiry() time.Duration {
	return secondsOr(l.ExpirySeconds, 60*time.Second)
}

func (l Lock) Wait() time.Duration {
	return secondsOr(l.WaitSeconds, 10*time.Second)
}

func (c Cache) TTL() time.Duration {
	return secondsOr(c.TTLSeconds, 10*time.Minute)
}

func (c Cache) SweepInterval() time.Duration {
	return secondsOr(c.SweepIntervalSeconds, time.Minute)
}

func millisOr(millis int64, fallback time.Duration) time.Duration {
	if millis > 0 {
		return time.Duration(millis) * time.Millisecond
	}
	return fallback
}

func secondsOr(seconds int64, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
