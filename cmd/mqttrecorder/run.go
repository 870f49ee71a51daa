package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/mqtt-recorder/internal/api"
	"github.com/nerrad567/mqtt-recorder/internal/archive"
	"github.com/nerrad567/mqtt-recorder/internal/dispatch"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-recorder/internal/player"
	"github.com/nerrad567/mqtt-recorder/internal/recorder"
	"github.com/nerrad567/mqtt-recorder/internal/session"
)

// errNothingToDo is returned for --no-recording without anything to play.
var errNothingToDo = errors.New("--no-recording needs a playback file")

// run is the actual application logic, separated from main for testability.
//
// It records until the session ends when no playback file is given, and
// otherwise plays the files back while the session (and recording, unless
// disabled) runs in the background.
func run(ctx context.Context, opts options) error {
	// Use default logger until config is loaded
	log := logging.Default()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting mqtt-recorder",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	playback := opts.playbackFiles()
	if opts.noRecording && len(playback) == 0 {
		return errNothingToDo
	}

	client, err := mqtt.New(cfg)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(log)

	reg := dispatch.NewRegistry()
	sess, err := session.New(client, reg,
		session.WithLogger(log),
		session.WithPublishQoS(byte(cfg.PublishQoS)), // #nosec G115 -- validated 0..2
		session.WithConnectTimeout(cfg.ConnectTimeout),
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.API.WebSocket, log)
	}

	var (
		rec   *recorder.Recorder
		store *archive.Store
	)
	if !opts.noRecording {
		var extra []recorder.Mirror
		if hub != nil {
			extra = append(extra, hub)
		}
		rec, store, err = openRecorder(ctx, cfg, log, extra...)
		if err != nil {
			return err
		}
		sess.AddCloser(rec)

		if err := registerTopics(reg, cfg.Topics, rec, log); err != nil {
			sess.Disconnect()
			return err
		}
		log.Info("recording",
			"broker", client.Address(),
			"client_id", client.ClientID(),
			"output_file", cfg.OutputFile,
			"patterns", len(cfg.Topics),
		)
	}

	if cfg.API.Enabled {
		srv, err := startAPI(ctx, cfg, log, sess, hub, rec, store)
		if err != nil {
			sess.Disconnect()
			return err
		}
		defer func() {
			if err := srv.Close(); err != nil {
				log.Warn("closing API server", "error", err)
			}
		}()
	}

	if len(playback) == 0 {
		return sess.Run(ctx)
	}

	return playAlongside(ctx, sess, playback, opts.delay, cfg, log)
}

// loadConfig resolves the config file and applies command-line overrides.
func loadConfig(opts options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if opts.outputFile != "" {
		cfg.OutputFile = opts.outputFile
	}
	if opts.noRecording {
		cfg.Topics = nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerTopics binds each configured pattern to its handler.
func registerTopics(reg *dispatch.Registry, topics []config.TopicConfig, dump dispatch.Handler, log *logging.Logger) error {
	for _, t := range topics {
		kind, err := dispatch.ParseKind(t.Callback)
		if err != nil {
			return fmt.Errorf("topic %q: %w", t.Topic, err)
		}

		var h dispatch.Handler
		switch kind {
		case dispatch.KindLog:
			h = dispatch.NewLogHandler(log)
		case dispatch.KindDiscard:
			h = dispatch.DiscardHandler{}
		default:
			h = dump
		}

		if err := reg.Register(t.Topic, byte(t.QoS), h); err != nil { // #nosec G115 -- validated 0..2
			return fmt.Errorf("registering %q: %w", t.Topic, err)
		}
	}
	return nil
}

// openRecorder opens the configured mirrors and the output file. extra
// mirrors are appended after the archive and InfluxDB. The archive store is
// returned for read access, or nil when the archive is disabled.
func openRecorder(ctx context.Context, cfg *config.Config, log *logging.Logger, extra ...recorder.Mirror) (*recorder.Recorder, *archive.Store, error) {
	ropts := []recorder.Option{recorder.WithLogger(log)}
	var (
		mirrors []recorder.Mirror
		store   *archive.Store
	)

	if cfg.Archive.Enabled {
		var err error
		store, err = archive.Open(ctx, database.Config{
			Path:        cfg.Archive.Path,
			WALMode:     cfg.Archive.WALMode,
			BusyTimeout: cfg.Archive.BusyTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		mirrors = append(mirrors, store)
		log.Info("archive opened", "path", cfg.Archive.Path)
	}

	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			for _, m := range mirrors {
				m.Close() //nolint:errcheck // Best effort cleanup on error path
			}
			return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influx.SetOnError(func(err error) {
			log.Warn("influxdb write failed", "error", err)
		})
		mirrors = append(mirrors, influx)
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	mirrors = append(mirrors, extra...)
	for _, m := range mirrors {
		ropts = append(ropts, recorder.WithMirror(m))
	}

	rec, err := recorder.Open(cfg.OutputFile, ropts...)
	if err != nil {
		return nil, nil, err
	}
	return rec, store, nil
}

// startAPI serves the status API. rec and store may be nil.
func startAPI(ctx context.Context, cfg *config.Config, log *logging.Logger, sess *session.Controller, hub *api.Hub, rec *recorder.Recorder, store *archive.Store) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Session: sess,
		Hub:     hub,
		Version: version,
	}
	// Typed nils would make the optional endpoints look configured.
	if rec != nil {
		deps.Recorder = rec
	}
	if store != nil {
		deps.Archive = store
	}

	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return srv, nil
}

// playAlongside runs the session loop in the background while the player
// drives publishes. The first failure on either side ends both.
func playAlongside(ctx context.Context, sess *session.Controller, files []string, delay bool, cfg *config.Config, log *logging.Logger) error {
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.Disconnect()

	p := player.New(sess,
		player.WithLogger(log),
		player.WithGracePeriod(cfg.Playback.GracePeriod),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-sess.Done():
			return sess.Err()
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		n, err := p.PlayFiles(gctx, files, delay)
		if err != nil {
			return fmt.Errorf("playback: %w", err)
		}
		log.Info("playback complete", "messages", n)
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		log.Info("shutdown requested")
		return nil
	}
	return err
}
