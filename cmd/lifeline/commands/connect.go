// Copyright 2026 The Lifeline Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/lifeline-foundation/lifeline/cmd/lifeline/cli"
	"github.com/lifeline-foundation/lifeline/lib/config"
	"github.com/lifeline-foundation/lifeline/lib/feed/wsfeed"
	"github.com/lifeline-foundation/lifeline/lib/livesync"
	"github.com/lifeline-foundation/lifeline/lib/schema"
	"github.com/lifeline-foundation/lifeline/lib/snapshotcache"
)

// pollInterval paces the checks on session state that have no change
// notification of their own.
const pollInterval = 25 * time.Millisecond

// rejectionGrace bounds the wait for a rejection report once a
// mutation has left the pending set without taking effect.
const rejectionGrace = 2 * time.Second

// connectFlags are shared by every command that talks to the feed.
type connectFlags struct {
	configPath string
	url        string
	email      string
	noCache    bool
	timeout    time.Duration
	verbose    bool
}

func (f *connectFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default $LIFELINE_CONFIG, else built-in defaults)")
	flagSet.StringVar(&f.url, "url", "", "feed service WebSocket URL, overriding feed.url")
	flagSet.StringVarP(&f.email, "email", "e", "", "sign in as this address, overriding feed.email")
	flagSet.BoolVar(&f.noCache, "no-cache", false, "neither read nor write the offline snapshot cache")
	flagSet.DurationVar(&f.timeout, "timeout", 30*time.Second, "give up on the feed after this long (0 waits forever)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log debug detail to stderr")
}

// connection is a signed-in feed client plus what sessions need.
type connection struct {
	config *config.Config
	client *wsfeed.Client
	cache  *snapshotcache.Cache
	logger *slog.Logger
}

// connect loads the configuration, applies flag overrides and signs
// in to the feed service.
func (app *App) connect(ctx context.Context, flags *connectFlags) (*connection, error) {
	logger := cli.NewCommandLogger(app.Stderr, flags.verbose)

	cfg, err := config.Resolve(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.url != "" {
		cfg.Feed.URL = flags.url
	}
	if flags.email != "" {
		cfg.Feed.Email = flags.email
	}
	if cfg.Feed.Email == "" {
		return nil, errors.New("no email to sign in with: set feed.email, LIFELINE_EMAIL or --email")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := wsfeed.Dial(ctx, wsfeed.Config{
		URL:            cfg.Feed.URL,
		Email:          cfg.Feed.Email,
		DialTimeout:    cfg.Feed.DialTimeout,
		InitialBackoff: cfg.Feed.InitialBackoff,
		MaxBackoff:     cfg.Feed.MaxBackoff,
		PingInterval:   cfg.Feed.PingInterval,
		Logger:         logger.With("component", "wsfeed"),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Feed.URL, err)
	}

	conn := &connection{config: cfg, client: client, logger: logger}
	if cfg.Cache.On() && !flags.noCache {
		cache, err := snapshotcache.New(snapshotcache.Config{
			Directory: cfg.Cache.Directory,
			Logger:    logger.With("component", "snapshotcache"),
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		conn.cache = cache
	}
	logger.Debug("signed in", "email", client.User().Email, "role", client.User().Role)
	return conn, nil
}

func (c *connection) Close() error {
	return c.client.Close()
}

// collection resolves name and checks that the signed-in user may
// perform action on it.
func (c *connection) collection(name string, action schema.Action) (schema.Collection, error) {
	collection, ok := schema.Lookup(name)
	if !ok {
		names := make([]string, 0, len(schema.All()))
		for _, known := range schema.All() {
			names = append(names, known.Name)
		}
		return schema.Collection{}, fmt.Errorf("unknown collection %q (choose from %s)", name, strings.Join(names, ", "))
	}
	user := c.client.User()
	if !collection.Allows(user.Role, action) {
		return schema.Collection{}, fmt.Errorf("%s may not %s %s", user.Role, action, collection.Name)
	}
	return collection, nil
}

// sessionOptions configures a session on collection that reports
// asynchronous errors to sink.
func (c *connection) sessionOptions(collection schema.Collection, onError func(error)) livesync.Options {
	options := livesync.Options{
		Validator:       collection.Validate,
		MutationTimeout: c.config.Session.MutationTimeout,
		OnError:         onError,
		Logger:          c.logger.With("component", "livesync"),
	}
	if c.cache != nil {
		options.Cache = c.cache
	}
	return options
}

// withTimeout bounds ctx by the --timeout flag.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// errorSink collects the errors a session reports asynchronously.
type errorSink struct {
	mu     sync.Mutex
	errs   []error
	notify chan struct{}
}

func newErrorSink() *errorSink {
	return &errorSink{notify: make(chan struct{}, 1)}
}

func (s *errorSink) report(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *errorSink) last() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[len(s.errs)-1]
}

// rejection returns the WriteRejected reported for id, if any.
func (s *errorSink) rejection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, err := range s.errs {
		if rejected, ok := livesync.AsWriteRejected(err); ok && rejected.ID == id {
			return rejected
		}
	}
	return nil
}

// waitLive returns once the session holds a snapshot from the feed.
func waitLive(ctx context.Context, session *livesync.Session, sink *errorSink) error {
	changes, stop := session.Subscribe()
	defer stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		switch session.State() {
		case livesync.StateLive:
			return nil
		case livesync.StateStale:
			if err := sink.last(); err != nil {
				return fmt.Errorf("reading %s: %w", session.Path(), err)
			}
			return fmt.Errorf("reading %s: subscription failed", session.Path())
		case livesync.StateClosed:
			return livesync.ErrClosed
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", session.Path(), ctx.Err())
		case <-changes:
		case <-sink.notify:
		case <-ticker.C:
		}
	}
}

// pendingLookup is the part of a session awaitMutation watches.
type pendingLookup interface {
	Pending(id string) (livesync.Mutation, bool)
}

// awaitMutation waits for the pending mutation on id to settle and
// returns the feed's rejection, if any. effective reports whether the
// store already shows the mutation as applied. Otherwise a rejection
// report is awaited for grace; a snapshot that predates the commit can
// land after the ack, so silence means the mutation succeeded.
func awaitMutation(ctx context.Context, session pendingLookup, sink *errorSink, id string, grace time.Duration, effective func() bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if err := sink.rejection(id); err != nil {
			return err
		}
		if _, pending := session.Pending(id); !pending {
			if effective() {
				return nil
			}
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for the feed to confirm %s: %w", id, ctx.Err())
		case <-sink.notify:
		case <-ticker.C:
		}
	}

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	for {
		if err := sink.rejection(id); err != nil {
			return err
		}
		select {
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for the feed to answer %s: %w", id, ctx.Err())
		case <-sink.notify:
		case <-ticker.C:
		}
	}
}
