// Package cmd implements the berth command line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rigstead/berth/internal/config"
	"github.com/rigstead/berth/internal/errors"
	"github.com/rigstead/berth/internal/event"
	"github.com/rigstead/berth/internal/instance"
	"github.com/rigstead/berth/internal/logging"
	"github.com/rigstead/berth/internal/ports"
	"github.com/rigstead/berth/internal/remote"
	"github.com/rigstead/berth/internal/tunnel"
)

var rootCmd = &cobra.Command{
	Use:   "berth",
	Short: "Readiness monitor and tunnel manager for remote GPU instances",
	Long: `Berth watches freshly booted GPU instances until they are ready to
serve, and manages the local SSH tunnels that reach them.

It polls the instance's provisioning log over SSH and classifies the
output into stages (INITIALIZING, PROVISIONING, DOWNLOADING, STARTING_APP,
READY). Tunnels are detached ssh port-forwards whose records persist
across invocations; there is no daemon, so every command reconciles the
persisted records against the live processes it finds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. The caller maps the returned error to an
// exit code with errors.ExitCode.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/berth/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/berth")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BERTH")
	// Replace dots with underscores for nested keys in env vars
	// e.g., BERTH_TUNNEL_BASE_PORT for tunnel.base_port
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// runtime bundles the pieces every command builds from the effective
// configuration: the state directory, the debug logger, and the event bus.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	stateDir string
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	stateDir := cfg.State.ResolveDir()

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLoggerWithRotation(stateDir, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return nil, errors.Wrap(err, "open debug log")
		}
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		bus:      event.NewBus(),
		stateDir: stateDir,
	}, nil
}

func (r *runtime) close() {
	_ = r.logger.Close()
}

func (r *runtime) portAllocator() *ports.Allocator {
	return ports.New(ports.Options{
		StateDir: r.stateDir,
		BasePort: r.cfg.Tunnel.BasePort,
		Window:   r.cfg.Tunnel.ScanWindow,
		LockWait: r.cfg.State.LockWait(),
		Logger:   r.logger,
	})
}

func (r *runtime) tunnelManager() *tunnel.Manager {
	return tunnel.New(tunnel.Options{
		StateDir:          r.stateDir,
		Ports:             r.portAllocator(),
		Bus:               r.bus,
		Logger:            r.logger,
		LockWait:          r.cfg.State.LockWait(),
		GraceDelay:        r.cfg.Tunnel.GraceDelay(),
		StopGrace:         r.cfg.Tunnel.StopGrace(),
		KeepaliveSeconds:  r.cfg.Tunnel.KeepaliveIntervalSeconds,
		KeepaliveCount:    r.cfg.Tunnel.KeepaliveCountMax,
		DefaultRemotePort: r.cfg.Tunnel.DefaultRemotePort,
	})
}

func (r *runtime) sshClient() *remote.Client {
	return remote.NewClient(r.cfg.SSH, r.logger)
}

// signalContext returns a context canceled by SIGINT or SIGTERM, so blocking
// commands unwind through their normal cleanup paths.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// instanceFlags are the connection flags shared by every command that
// reaches an instance over SSH.
type instanceFlags struct {
	host    string
	sshPort int
	keyPath string
	user    string
}

func (f *instanceFlags) register(cmd *cobra.Command) {
	f.registerOptional(cmd)
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("ssh-port")
}

// registerOptional registers the connection flags without marking any
// required, for commands where the instance is optional.
func (f *instanceFlags) registerOptional(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "host", "", "SSH host of the instance")
	cmd.Flags().IntVar(&f.sshPort, "ssh-port", 0, "SSH port of the instance")
	cmd.Flags().StringVar(&f.keyPath, "key", "", "SSH private key (default: $BERTH_SSH_KEY, then common keys in ~/.ssh)")
	cmd.Flags().StringVar(&f.user, "user", "", "SSH login user (default: root)")
}

// handle builds the instance handle from the flags, falling back to the
// configured SSH defaults for key and user.
func (f *instanceFlags) handle(cfg *config.Config, instanceID string) instance.Handle {
	h := instance.Handle{
		ID:      instanceID,
		SSHHost: f.host,
		SSHPort: f.sshPort,
		KeyPath: f.keyPath,
		User:    f.user,
	}
	if h.KeyPath == "" {
		h.KeyPath = cfg.SSH.KeyPath
	}
	if h.User == "" {
		h.User = cfg.SSH.User
	}
	return h
}
