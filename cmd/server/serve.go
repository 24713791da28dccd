package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agnivade/aprilvoice"
	"github.com/agnivade/aprilvoice/audio"
	"github.com/agnivade/aprilvoice/events"
	"github.com/agnivade/aprilvoice/logging"
	"github.com/agnivade/aprilvoice/providers"
	"github.com/agnivade/aprilvoice/providers/local"
	"github.com/agnivade/aprilvoice/providers/mock"
)

// embeddedNATS makes the server run its own NATS broker.
const embeddedNATS = "embedded"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebSocket server",
	RunE:  runServe,
}

// Viper keys are the lowercased environment variable names.
var serveFlags = []struct {
	key, flag, usage string
	def              any
}{
	{"host", "host", "listen host", "0.0.0.0"},
	{"port", "port", "listen port", 8000},
	{"use_cloud_asr", "cloud", "use the cloud providers from the cloud config", false},
	{"use_mock_asr", "mock", "use the canned-phrase provider", false},
	{"cloud_asr_config", "cloud-config", "cloud provider config (json, yaml or toml)", "cloud_asr_config.json"},
	{"local_asr_command", "local-command", "external recognizer command for local mode", ""},
	{"local_asr_model", "local-model", "model path for local mode", ""},
	{"asr_language", "language", "recognition language for local mode", "zh"},
	{"asr_workers", "workers", "concurrent recognitions across all sessions", aprilvoice.DefaultWorkers},
	{"log_level", "log-level", "log level", "info"},
	{"log_format", "log-format", "log format: text or json", "text"},
	{"log_file", "log-file", "also write logs to this rotated file", ""},
	{"nats_url", "nats-url", `publish transcripts to this NATS server, or "embedded"`, ""},
	{"usage_store", "usage-store", "persist account usage: sqlite://path, redis://..., postgres://...", ""},
	{"ffmpeg_path", "ffmpeg", "ffmpeg binary", "ffmpeg"},
}

func addServeFlags(cmd *cobra.Command) {
	for _, f := range serveFlags {
		switch def := f.def.(type) {
		case string:
			cmd.Flags().String(f.flag, def, f.usage)
		case int:
			cmd.Flags().Int(f.flag, def, f.usage)
		case bool:
			cmd.Flags().Bool(f.flag, def, f.usage)
		}
	}
}

func bindServeFlags(flags *pflag.FlagSet) {
	for _, f := range serveFlags {
		viper.BindPFlag(f.key, flags.Lookup(f.flag))
	}
}

type settings struct {
	Addr         string
	UseCloud     bool
	UseMock      bool
	CloudConfig  string
	LocalCommand string
	LocalModel   string
	Language     string
	Workers      int
	Log          logging.Options
	NATSURL      string
	UsageStore   string
	FFmpegPath   string
}

func loadSettings() settings {
	return settings{
		Addr:         net.JoinHostPort(viper.GetString("host"), strconv.Itoa(viper.GetInt("port"))),
		UseCloud:     viper.GetBool("use_cloud_asr"),
		UseMock:      viper.GetBool("use_mock_asr"),
		CloudConfig:  viper.GetString("cloud_asr_config"),
		LocalCommand: viper.GetString("local_asr_command"),
		LocalModel:   viper.GetString("local_asr_model"),
		Language:     viper.GetString("asr_language"),
		Workers:      viper.GetInt("asr_workers"),
		Log: logging.Options{
			Level:  viper.GetString("log_level"),
			Format: viper.GetString("log_format"),
			File:   viper.GetString("log_file"),
			Stderr: true,
		},
		NATSURL:    viper.GetString("nats_url"),
		UsageStore: viper.GetString("usage_store"),
		FFmpegPath: viper.GetString("ffmpeg_path"),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	bindServeFlags(cmd.Flags())
	s := loadSettings()

	log, err := logging.Configure(s.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.WithError(err).Warn("Error during shutdown")
			}
		}
	}()

	sel, err := selectProvider(ctx, s, log)
	if err != nil {
		return err
	}
	closers = append(closers, sel.closers...)

	opts := []aprilvoice.Option{
		aprilvoice.WithAddr(s.Addr),
		aprilvoice.WithLogger(log),
		aprilvoice.WithWorkers(int64(s.Workers)),
		aprilvoice.WithMode(sel.mode),
	}

	metrics, handler, shutdownMetrics, err := aprilvoice.NewPrometheusMetrics()
	if err != nil {
		log.WithError(err).Warn("Failed to initialize metrics")
	} else {
		opts = append(opts, aprilvoice.WithMetrics(metrics, handler))
		defer shutdownMetrics(context.Background())
	}

	if s.NATSURL != "" {
		pub, ns, err := connectEvents(s.NATSURL, log)
		if err != nil {
			log.WithError(err).Warn("Transcript events disabled")
		} else {
			opts = append(opts, aprilvoice.WithPublisher(pub))
			closers = append(closers, pub)
			if ns != nil {
				defer ns.Shutdown()
			}
		}
	}

	server := aprilvoice.New(sel.provider, opts...)
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if err := server.Stop(); err != nil {
		log.WithError(err).Error("Error during server shutdown")
	}
	return nil
}

type selection struct {
	provider providers.Provider
	mode     string
	closers  []io.Closer
}

// selectProvider picks cloud, local or mock mode. Cloud falls back to local
// when the config is missing or empty; any mode but mock falls back to mock
// when initialization fails.
func selectProvider(ctx context.Context, s settings, log logrus.FieldLogger) (selection, error) {
	normalizer := audio.NewNormalizer(&audio.FFmpeg{Path: s.FFmpegPath}, log)

	var sel selection
	if s.UseCloud {
		router, closers, err := buildCloud(ctx, s, normalizer, log)
		if err != nil {
			log.WithError(err).Warn("Cloud ASR not available, falling back to local")
		} else {
			sel = selection{provider: router, mode: aprilvoice.ModeCloud, closers: closers}
		}
	}

	if sel.provider == nil {
		if s.UseMock {
			sel = selection{provider: mock.NewProvider(500*time.Millisecond, log), mode: aprilvoice.ModeMock}
		} else {
			p := local.NewProvider(local.Config{
				Command:    s.LocalCommand,
				ModelPath:  s.LocalModel,
				Language:   s.Language,
				Normalizer: normalizer,
			}, log)
			sel = selection{provider: p, mode: aprilvoice.ModeLocal, closers: []io.Closer{p}}
		}
	}

	if err := sel.provider.Initialize(ctx); err != nil {
		if sel.mode == aprilvoice.ModeMock {
			return selection{}, err
		}
		log.WithError(err).Error("Failed to initialize ASR, falling back to mock ASR")
		for _, c := range sel.closers {
			c.Close()
		}
		sel = selection{provider: mock.NewProvider(500*time.Millisecond, log), mode: aprilvoice.ModeMock}
		if err := sel.provider.Initialize(ctx); err != nil {
			return selection{}, err
		}
	}

	log.WithField("mode", sel.mode).Info("ASR service initialized")
	return sel, nil
}

func buildCloud(ctx context.Context, s settings, normalizer *audio.Normalizer, log logrus.FieldLogger) (*aprilvoice.ProviderRouter, []io.Closer, error) {
	cfg, err := aprilvoice.LoadCloudConfig(s.CloudConfig)
	if err != nil {
		return nil, nil, err
	}

	store, err := aprilvoice.OpenUsageStore(ctx, s.UsageStore)
	if err != nil {
		return nil, nil, fmt.Errorf("open usage store: %w", err)
	}

	router, err := cfg.Build(ctx, aprilvoice.BuildOptions{Normalizer: normalizer, Store: store, Log: log})
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}

	closers := []io.Closer{router}
	if store != nil {
		closers = append([]io.Closer{store}, closers...)
	}
	return router, closers, nil
}

func connectEvents(url string, log logrus.FieldLogger) (*events.NATS, *events.Embedded, error) {
	var ns *events.Embedded
	if url == embeddedNATS {
		var err error
		ns, err = events.StartEmbedded("127.0.0.1", 4222)
		if err != nil {
			return nil, nil, err
		}
		url = ns.URL()
		log.WithField("url", url).Info("Started embedded NATS server")
	}

	pub, err := events.Connect(url, log)
	if err != nil {
		ns.Shutdown()
		return nil, nil, err
	}
	return pub, ns, nil
}
