package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/goblimey/go-ntrip-client/metrics"
	"github.com/goblimey/go-ntrip-client/ntrip"
	"github.com/goblimey/go-ntrip-client/recorder"
	"github.com/goblimey/go-ntrip-client/relay"
	"github.com/goblimey/go-ntrip-client/rtcm/handler"
	"github.com/goblimey/go-ntrip-client/shutdown"
)

// messageSummary is what the subscribe command prints for each message.
type messageSummary struct {
	Mount       string `json:"mount" yaml:"mount"`
	MessageType int    `json:"message_type" yaml:"message_type"`
	Length      int    `json:"length" yaml:"length"`
	Title       string `json:"title" yaml:"title"`
}

// subscribeOptions are the subscribe command's flags.
type subscribeOptions struct {
	recordDirectory string
	natsURL         string
	redisAddress    string
	metricsAddress  string
	quiet           bool
	timeout         time.Duration
}

func newSubscribeCommand(a *app) *cobra.Command {
	var opts subscribeOptions

	cmd := &cobra.Command{
		Use:   "subscribe [MOUNT]",
		Short: "Stream RTCM3 messages from a mount until interrupted",
		Long: `subscribe connects to the mount and handles each RTCM3 message as it
arrives.  By default it prints a one line summary of each message.  It can
also record the messages to daily log files and republish them via NATS or
redis.  It runs until interrupted or until the caster closes the connection.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mount := a.cfg.Mount
			if len(args) > 0 {
				mount = args[0]
			}
			if mount == "" {
				return errNoMount
			}
			if opts.recordDirectory == "" {
				opts.recordDirectory = a.cfg.MessageLogDirectory
			}
			if opts.natsURL == "" {
				opts.natsURL = a.cfg.NATSURL
			}
			if opts.redisAddress == "" {
				opts.redisAddress = a.cfg.RedisAddress
			}
			if opts.metricsAddress == "" {
				opts.metricsAddress = a.cfg.MetricsAddress
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.subscribe(ctx, cmd, mount, &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.recordDirectory, "record-dir", "", "record the messages to daily log files in this directory")
	flags.StringVar(&opts.natsURL, "nats-url", "", "republish the messages to this NATS server")
	flags.StringVar(&opts.redisAddress, "redis-addr", "", "republish the messages to this redis server")
	flags.StringVar(&opts.metricsAddress, "metrics-addr", "", "serve prometheus metrics on this address, for example :9090")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "don't print the messages")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "time allowed to connect to the caster")

	return cmd
}

// subscribe streams the mount until ctx is done or the stream ends.
func (a *app) subscribe(ctx context.Context, cmd *cobra.Command, mount string, opts *subscribeOptions) error {
	var clientOptions []ntrip.Option

	if opts.metricsAddress != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		clientOptions = append(clientOptions, ntrip.WithMetrics(metrics.New(registry)))

		server := &http.Server{Addr: opts.metricsAddress, Handler: metrics.Handler(registry)}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "address", opts.metricsAddress, "error", err)
			}
		}()
		defer server.Close()
	}

	var writer *recorder.Writer
	if opts.recordDirectory != "" {
		w, err := recorder.New(opts.recordDirectory, a.logger)
		if err != nil {
			return err
		}
		writer = w
		defer writer.Close()
	}

	publisher, err := a.publishers(ctx, opts)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	client, err := a.client(clientOptions...)
	if err != nil {
		return err
	}

	sig := shutdown.New()
	stopSending := sig.SendOnDone(ctx)
	defer stopSending()

	connectCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	stream, err := client.Subscribe(connectCtx, mount, sig)
	if err != nil {
		return err
	}

	// The stream drains after the signal, so the messages are read with a
	// context that isn't cancelled by it.
	for message := range stream.All(context.WithoutCancel(ctx)) {
		if err := a.handleMessage(ctx, cmd, mount, message, writer, publisher, opts.quiet); err != nil {
			a.logger.Warn("cannot handle message", "mount", mount, "type", message.MessageType, "error", err)
		}
	}

	return stream.Err()
}

// publishers connects to the configured brokers.  It returns nil if there
// are none.
func (a *app) publishers(ctx context.Context, opts *subscribeOptions) (relay.Publisher, error) {
	var multi relay.Multi

	if opts.natsURL != "" {
		p, err := relay.DialNATS(opts.natsURL, a.cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, err
		}
		multi = append(multi, p)
	}

	if opts.redisAddress != "" {
		p, err := relay.DialRedis(ctx, opts.redisAddress, a.cfg.RedisChannelPrefix)
		if err != nil {
			multi.Close()
			return nil, err
		}
		multi = append(multi, p)
	}

	if len(multi) == 0 {
		return nil, nil
	}
	return multi, nil
}

// handleMessage prints, records and republishes one message.
func (a *app) handleMessage(ctx context.Context, cmd *cobra.Command, mount string, message *handler.Message,
	writer *recorder.Writer, publisher relay.Publisher, quiet bool) error {

	var errs []error

	if !quiet {
		summary := messageSummary{
			Mount:       mount,
			MessageType: message.MessageType,
			Length:      message.Length(),
			Title:       message.Title(),
		}
		if a.tableOutput() {
			fmt.Fprintln(cmd.OutOrStdout(), describe(message))
		} else if err := a.print(cmd, summary); err != nil {
			errs = append(errs, err)
		}
	}

	if writer != nil {
		if err := writer.WriteMessage(message); err != nil {
			errs = append(errs, err)
		}
	}

	if publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := publisher.Publish(pubCtx, mount, message); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
