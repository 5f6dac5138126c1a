// Package deploy statically checks the docker-compose manifest that ships the
// service, catching drift between the manifest and what the application
// expects at runtime.
package deploy

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

const (
	webService   = "web"
	mongoService = "mongo"

	listenPort   = "8080"
	mongoDataDir = "/data/db"

	envDatabaseURI  = "DATABASE_URI"
	envDatabasePort = "DATABASE_PORT"
	envDatabaseName = "DATABASE_NAME"
	envReplicaSet   = "REPLICA_SET"
)

// Manifest is a loaded compose project.
type Manifest struct {
	project *types.Project
}

// LoadFile reads and parses a compose manifest from disk.
func LoadFile(ctx context.Context, path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Load(ctx, content)
}

// Load parses a compose manifest from raw YAML.
func Load(ctx context.Context, content []byte) (*Manifest, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if dict == nil {
		return nil, fmt.Errorf("empty manifest")
	}

	project, err := loader.LoadWithContext(ctx, types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Content: content, Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("deploycheck", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, fmt.Errorf("invalid compose manifest: %w", err)
	}

	return &Manifest{project: project}, nil
}

// Verify checks the manifest's declared wiring: the service topology, the port
// and volume mappings, the database environment and the replica-set naming.
// It returns one message per violation.
func (m *Manifest) Verify() []string {
	var violations []string

	web, webOk := m.project.Services[webService]
	if !webOk {
		violations = append(violations, fmt.Sprintf("service %q is not declared", webService))
	}

	mongo, mongoOk := m.project.Services[mongoService]
	if !mongoOk {
		violations = append(violations, fmt.Sprintf("service %q is not declared", mongoService))
	}

	if webOk {
		violations = append(violations, m.verifyWeb(web, mongoOk)...)
	}
	if mongoOk {
		violations = append(violations, m.verifyMongo(mongo)...)
	}

	return violations
}

func (m *Manifest) verifyWeb(web types.ServiceConfig, mongoDeclared bool) []string {
	var violations []string

	for dep := range web.DependsOn {
		if _, ok := m.project.Services[dep]; !ok {
			violations = append(violations, fmt.Sprintf("web depends on undeclared service %q", dep))
		}
	}
	if mongoDeclared {
		if _, ok := web.DependsOn[mongoService]; !ok {
			violations = append(violations, "web must declare depends_on: mongo")
		}
	}

	if !hasPortMapping(web.Ports, listenPort, listenPort) {
		violations = append(violations, fmt.Sprintf("web must publish host port %s to container port %s", listenPort, listenPort))
	}

	env := web.Environment
	for _, key := range []string{envDatabaseURI, envDatabasePort, envDatabaseName, envReplicaSet} {
		if value, ok := env[key]; !ok || value == nil || *value == "" {
			violations = append(violations, fmt.Sprintf("web is missing environment variable %s", key))
		}
	}

	if host := envValue(env, envDatabaseURI); host != "" {
		if _, ok := m.project.Services[host]; !ok {
			violations = append(violations, fmt.Sprintf("%s=%q does not name a declared service", envDatabaseURI, host))
		}
	}

	if port := envValue(env, envDatabasePort); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			violations = append(violations, fmt.Sprintf("%s=%q is not a port number", envDatabasePort, port))
		}
	}

	if rs := envValue(env, envReplicaSet); rs != "" {
		if declared := replicaSetArg(m.project.Services[mongoService].Command); declared != rs {
			violations = append(violations,
				fmt.Sprintf("%s=%q does not match the replica set %q started by mongo", envReplicaSet, rs, declared))
		}
	}

	if web.Restart != types.RestartPolicyAlways {
		violations = append(violations, "web must use restart: always")
	}

	return violations
}

func (m *Manifest) verifyMongo(mongo types.ServiceConfig) []string {
	var violations []string

	mounted := false
	for _, vol := range mongo.Volumes {
		if vol.Target == mongoDataDir {
			mounted = true
			break
		}
	}
	if !mounted {
		violations = append(violations, fmt.Sprintf("mongo must mount a volume at %s", mongoDataDir))
	}

	if replicaSetArg(mongo.Command) == "" {
		violations = append(violations, "mongo must be started with --replSet")
	}

	if mongo.Restart != types.RestartPolicyAlways {
		violations = append(violations, "mongo must use restart: always")
	}

	return violations
}

func hasPortMapping(ports []types.ServicePortConfig, published, target string) bool {
	for _, p := range ports {
		if p.Published == published && strconv.FormatUint(uint64(p.Target), 10) == target {
			return true
		}
	}
	return false
}

func envValue(env types.MappingWithEquals, key string) string {
	if value, ok := env[key]; ok && value != nil {
		return *value
	}
	return ""
}

// replicaSetArg extracts the value of mongod's --replSet argument, accepting
// both the split and the --replSet=name spellings.
func replicaSetArg(command types.ShellCommand) string {
	for i, arg := range command {
		if arg == "--replSet" && i+1 < len(command) {
			return command[i+1]
		}
		if strings.HasPrefix(arg, "--replSet=") {
			return strings.TrimPrefix(arg, "--replSet=")
		}
	}
	return ""
}
