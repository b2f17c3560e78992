// Package config holds the scheduler and worker process settings. Values come from
// defaults, an optional YAML file, DISPATCH_* environment variables and flags, in
// increasing order of precedence.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/VerteraIO/dispatch/internal/controlplane/scheduler"
	"github.com/VerteraIO/dispatch/internal/logger"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DISPATCH"

// Transport values for Worker.Transport.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type GRPCConfig struct {
	// Addr is empty when the gRPC agent channel is disabled.
	Addr string `mapstructure:"addr"`
}

type MonitorConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	StaleTimeout     time.Duration `mapstructure:"stale_timeout"`
	MaxReassignments int           `mapstructure:"max_reassignments"`
}

type DispatchConfig struct {
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Output is a file path for exported spans. Empty means stdout.
	Output string `mapstructure:"output"`
}

// Scheduler is the configuration of the scheduler process.
type Scheduler struct {
	ConfigFile string         `mapstructure:"config_file"`
	HTTP       HTTPConfig     `mapstructure:"http"`
	GRPC       GRPCConfig     `mapstructure:"grpc"`
	Policy     string         `mapstructure:"policy"`
	Monitor    MonitorConfig  `mapstructure:"monitor"`
	Dispatch   DispatchConfig `mapstructure:"dispatch"`
	Log        logger.Config  `mapstructure:"log"`
	Tracing    TracingConfig  `mapstructure:"tracing"`
}

// DefaultScheduler returns the default configuration of the scheduler.
func DefaultScheduler() Scheduler {
	return Scheduler{
		HTTP:   HTTPConfig{Addr: ":8000"},
		Policy: scheduler.RoundRobinName,
		Monitor: MonitorConfig{
			Interval:     5 * time.Second,
			StaleTimeout: 8 * time.Second,
		},
		Log: logger.DefaultConfig(),
	}
}

func (c Scheduler) Validate() error {
	var errs *multierror.Error
	if c.HTTP.Addr == "" {
		errs = multierror.Append(errs, errors.New("http.addr must be set"))
	}
	if _, err := scheduler.Parse(c.Policy); err != nil {
		errs = multierror.Append(errs, err)
	}
	if c.Monitor.Interval <= 0 {
		errs = multierror.Append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.StaleTimeout <= 0 {
		errs = multierror.Append(errs, errors.New("monitor.stale_timeout must be positive"))
	}
	if c.Monitor.MaxReassignments < 0 {
		errs = multierror.Append(errs, errors.New("monitor.max_reassignments must not be negative"))
	}
	if c.Dispatch.SendTimeout < 0 {
		errs = multierror.Append(errs, errors.New("dispatch.send_timeout must not be negative"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "log.level"))
	}
	return errs.ErrorOrNil()
}

type WorkerSettings struct {
	ID string `mapstructure:"id"`
	// ListenAddr is where the worker serves /execute_task.
	ListenAddr string `mapstructure:"listen_addr"`
	// AdvertiseURL is the base URL the scheduler dispatches to.
	AdvertiseURL      string        `mapstructure:"advertise_url"`
	SchedulerURL      string        `mapstructure:"scheduler_url"`
	SchedulerGRPC     string        `mapstructure:"scheduler_grpc"`
	Transport         string        `mapstructure:"transport"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// Unit is the wall time of one unit of task duration.
	Unit time.Duration `mapstructure:"unit"`
}

// Worker is the configuration of the worker process.
type Worker struct {
	ConfigFile string         `mapstructure:"config_file"`
	Worker     WorkerSettings `mapstructure:"worker"`
	Log        logger.Config  `mapstructure:"log"`
}

// DefaultWorker returns the default configuration of a worker.
func DefaultWorker() Worker {
	return Worker{
		Worker: WorkerSettings{
			ListenAddr:        ":8001",
			AdvertiseURL:      "http://localhost:8001",
			SchedulerURL:      "http://localhost:8000",
			Transport:         TransportHTTP,
			HeartbeatInterval: 3 * time.Second,
			Unit:              time.Second,
		},
		Log: logger.DefaultConfig(),
	}
}

func (c Worker) Validate() error {
	var errs *multierror.Error
	w := c.Worker
	if w.ListenAddr == "" {
		errs = multierror.Append(errs, errors.New("worker.listen_addr must be set"))
	}
	if _, err := url.ParseRequestURI(w.AdvertiseURL); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "worker.advertise_url"))
	}
	switch w.Transport {
	case TransportHTTP:
		if _, err := url.ParseRequestURI(w.SchedulerURL); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "worker.scheduler_url"))
		}
	case TransportGRPC:
		if w.SchedulerGRPC == "" {
			errs = multierror.Append(errs, errors.New("worker.scheduler_grpc must be set for grpc transport"))
		}
	default:
		errs = multierror.Append(errs, errors.Errorf("unknown worker.transport %q", w.Transport))
	}
	if w.HeartbeatInterval <= 0 {
		errs = multierror.Append(errs, errors.New("worker.heartbeat_interval must be positive"))
	}
	if w.Unit < 0 {
		errs = multierror.Append(errs, errors.New("worker.unit must not be negative"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "log.level"))
	}
	return errs.ErrorOrNil()
}

// NewViper returns a viper instance reading DISPATCH_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

type key []string

func (k key) FlagName() string {
	return strings.ReplaceAll(strings.Join(k, "-"), "_", "-")
}

func (k key) AccessPath() string {
	return strings.Join(k, ".")
}

func name(components ...string) key { return components }

func registerString(v *viper.Viper, flags *pflag.FlagSet, k key, value, usage string) {
	flags.String(k.FlagName(), value, usage)
	_ = v.BindPFlag(k.AccessPath(), flags.Lookup(k.FlagName()))
	v.SetDefault(k.AccessPath(), value)
}

func registerBool(v *viper.Viper, flags *pflag.FlagSet, k key, value bool, usage string) {
	flags.Bool(k.FlagName(), value, usage)
	_ = v.BindPFlag(k.AccessPath(), flags.Lookup(k.FlagName()))
	v.SetDefault(k.AccessPath(), value)
}

func registerInt(v *viper.Viper, flags *pflag.FlagSet, k key, value int, usage string) {
	flags.Int(k.FlagName(), value, usage)
	_ = v.BindPFlag(k.AccessPath(), flags.Lookup(k.FlagName()))
	v.SetDefault(k.AccessPath(), value)
}

func registerDuration(v *viper.Viper, flags *pflag.FlagSet, k key, value time.Duration, usage string) {
	flags.Duration(k.FlagName(), value, usage)
	_ = v.BindPFlag(k.AccessPath(), flags.Lookup(k.FlagName()))
	v.SetDefault(k.AccessPath(), value)
}

func registerLog(v *viper.Viper, flags *pflag.FlagSet, d logger.Config) {
	registerString(v, flags, name("log", "level"),
		d.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(v, flags, name("log", "color"), d.Color, "output logs in color")
	registerBool(v, flags, name("log", "json"), d.JSON, "output logs as JSON")
}

// RegisterSchedulerFlags binds every scheduler key to a flag and a default.
func RegisterSchedulerFlags(v *viper.Viper, flags *pflag.FlagSet) {
	d := DefaultScheduler()
	registerString(v, flags, name("config_file"), d.ConfigFile, "location of config file")
	registerString(v, flags, name("http", "addr"), d.HTTP.Addr, "HTTP listen address")
	registerString(v, flags, name("grpc", "addr"), d.GRPC.Addr, "gRPC listen address, empty to disable")
	registerString(v, flags, name("policy"), d.Policy, "placement policy: round_robin or least_loaded")
	registerDuration(v, flags, name("monitor", "interval"), d.Monitor.Interval, "liveness check period")
	registerDuration(v, flags, name("monitor", "stale_timeout"),
		d.Monitor.StaleTimeout, "heartbeat age after which a worker is dead")
	registerInt(v, flags, name("monitor", "max_reassignments"),
		d.Monitor.MaxReassignments, "moves allowed per task, 0 for no limit")
	registerDuration(v, flags, name("dispatch", "send_timeout"),
		d.Dispatch.SendTimeout, "timeout for each task send, 0 for none")
	registerBool(v, flags, name("tracing", "enabled"), d.Tracing.Enabled, "export trace spans")
	registerString(v, flags, name("tracing", "output"), d.Tracing.Output, "span output file, empty for stdout")
	registerLog(v, flags, d.Log)
}

// RegisterWorkerFlags binds every worker key to a flag and a default.
func RegisterWorkerFlags(v *viper.Viper, flags *pflag.FlagSet) {
	d := DefaultWorker()
	w := d.Worker
	registerString(v, flags, name("config_file"), d.ConfigFile, "location of config file")
	registerString(v, flags, name("worker", "id"), w.ID, "worker id, generated when empty")
	registerString(v, flags, name("worker", "listen_addr"), w.ListenAddr, "listen address for task requests")
	registerString(v, flags, name("worker", "advertise_url"), w.AdvertiseURL, "URL the scheduler sends tasks to")
	registerString(v, flags, name("worker", "scheduler_url"), w.SchedulerURL, "scheduler HTTP base URL")
	registerString(v, flags, name("worker", "scheduler_grpc"), w.SchedulerGRPC, "scheduler gRPC address")
	registerString(v, flags, name("worker", "transport"), w.Transport, "scheduler transport: http or grpc")
	registerDuration(v, flags, name("worker", "heartbeat_interval"), w.HeartbeatInterval, "heartbeat period")
	registerDuration(v, flags, name("worker", "unit"), w.Unit, "wall time of one duration unit")
	registerLog(v, flags, d.Log)
}

// LoadScheduler reads the optional config file and returns the validated settings.
func LoadScheduler(v *viper.Viper) (Scheduler, error) {
	c := DefaultScheduler()
	if err := load(v, &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadWorker reads the optional config file and returns the validated settings.
func LoadWorker(v *viper.Viper) (Worker, error) {
	c := DefaultWorker()
	if err := load(v, &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func load(v *viper.Viper, out interface{}) error {
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "error reading configuration file %s", path)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return errors.Wrap(err, "cannot unmarshal configuration")
	}
	return nil
}
