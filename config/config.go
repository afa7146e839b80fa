// Package config loads the automate.yaml file that wires a worker or CLI
// invocation: worker identity, queue backend, engine endpoint, logging and
// metrics.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/dispatcher"
	"github.com/goliatone/go-automate/identity"
	"github.com/goliatone/go-automate/queue"
	"github.com/goliatone/go-automate/worker"
	"github.com/goliatone/go-errors"
	rcron "github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const ErrCodeInvalidConfig = "INVALID_CONFIG"

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Worker   Worker   `yaml:"worker"`
	Queue    Queue    `yaml:"queue"`
	Delivery Delivery `yaml:"delivery"`
	Engine   Engine   `yaml:"engine"`
	Log      Log      `yaml:"log"`
	Metrics  Metrics  `yaml:"metrics"`
	Identity Identity `yaml:"identity"`
}

// Worker describes the server this process claims work for.
type Worker struct {
	ID    int64         `yaml:"id" validate:"gte=0"`
	GUID  string        `yaml:"guid" validate:"required"`
	Zone  string        `yaml:"zone"`
	Roles []string      `yaml:"roles" validate:"dive,required"`
	Poll  string        `yaml:"poll" validate:"required,schedule"`
	Batch int           `yaml:"batch" validate:"min=1"`
	Lease time.Duration `yaml:"lease" validate:"gt=0"`
}

type Queue struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite redis"`
	DSN         string `yaml:"dsn" validate:"required_if=Backend sqlite"`
	Table       string `yaml:"table"`
	RedisAddr   string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB     int    `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type Delivery struct {
	Instance string        `yaml:"instance" validate:"required"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
	Role     string        `yaml:"role" validate:"required"`
}

type Engine struct {
	URL     string            `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers map[string]string `yaml:"headers"`
}

type Log struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr" validate:"required_if=Enabled true"`
}

// Identity seeds the in-memory user and group store.
type Identity struct {
	Groups []Group `yaml:"groups" validate:"dive"`
	Users  []User  `yaml:"users" validate:"dive"`
}

type Group struct {
	ID          int64  `yaml:"id" validate:"gt=0"`
	Description string `yaml:"description"`
}

type User struct {
	ID     int64  `yaml:"id" validate:"gt=0"`
	UserID string `yaml:"userid" validate:"required"`
	Name   string `yaml:"name"`
	Group  int64  `yaml:"group" validate:"gte=0"`
}

// Default returns a config that runs a single in-memory worker.
func Default() Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	return Config{
		Worker: Worker{
			GUID:  host,
			Zone:  "default",
			Roles: []string{identity.AutomateRole},
			Poll:  worker.DefaultPoll,
			Batch: worker.DefaultBatchSize,
			Lease: worker.DefaultLease,
		},
		Queue: Queue{
			Backend:     BackendMemory,
			Table:       queue.DefaultSQLiteTable,
			RedisPrefix: queue.DefaultRedisPrefix,
		},
		Delivery: Delivery{
			Instance: automate.DefaultInstanceName,
			Timeout:  dispatcher.DefaultMsgTimeout,
			Role:     dispatcher.DefaultRole,
		},
		Engine: Engine{Timeout: 30 * time.Second},
		Log:    Log{Level: "info", Format: "console"},
		Metrics: Metrics{
			Namespace: "automate",
			Addr:      ":9090",
		},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("read config %s", path)).
			WithTextCode(ErrCodeInvalidConfig)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.CategoryBadInput, "parse config").
			WithTextCode(ErrCodeInvalidConfig)
	}
	return cfg, cfg.Validate()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		_, err := rcron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and cross references between users and
// groups.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return invalid(err)
	}

	groups := make(map[int64]bool, len(c.Identity.Groups))
	for _, g := range c.Identity.Groups {
		groups[g.ID] = true
	}
	for _, u := range c.Identity.Users {
		if u.Group != 0 && !groups[u.Group] {
			return errors.New(fmt.Sprintf("user %s references unknown group %d", u.UserID, u.Group), errors.CategoryValidation).
				WithTextCode(ErrCodeInvalidConfig)
		}
	}
	return nil
}

func invalid(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, errors.CategoryValidation, "invalid config").WithTextCode(ErrCodeInvalidConfig)
	}
	fields := make([]string, 0, len(verrs))
	meta := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		name := strings.TrimPrefix(fe.Namespace(), "Config.")
		fields = append(fields, name)
		meta[name] = fe.Tag()
	}
	return errors.New("invalid config: "+strings.Join(fields, ", "), errors.CategoryValidation).
		WithTextCode(ErrCodeInvalidConfig).
		WithMetadata(meta)
}

// Server describes this process as a queue worker.
func (c Config) Server() *identity.Server {
	return &identity.Server{
		ID:    c.Worker.ID,
		GUID:  c.Worker.GUID,
		Zone:  c.Worker.Zone,
		Roles: append([]string(nil), c.Worker.Roles...),
	}
}

// Users builds the identity store from the identity section.
func (c Config) Users() *identity.MemoryStore {
	store := identity.NewMemoryStore()
	groups := make(map[int64]identity.Group, len(c.Identity.Groups))
	for _, g := range c.Identity.Groups {
		group := identity.Group{ID: g.ID, Description: g.Description}
		groups[g.ID] = group
		store.AddGroup(group)
	}
	for _, u := range c.Identity.Users {
		user := identity.User{ID: u.ID, UserID: u.UserID, Name: u.Name}
		if g, ok := groups[u.Group]; ok {
			user.CurrentGroup = &g
		}
		store.AddUser(user)
	}
	return store
}

// QueueDefaults maps the delivery section onto dispatcher defaults.
func (c Config) QueueDefaults() dispatcher.QueueDefaults {
	return dispatcher.QueueDefaults{Role: c.Delivery.Role, Timeout: c.Delivery.Timeout}
}
