// Command plexdate finds items in a Plex library and rewrites their addedAt
// date, one item or thousands at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/plex-added-date/internal/config"
	"github.com/Sternrassler/plex-added-date/pkg/batch"
	"github.com/Sternrassler/plex-added-date/pkg/cache"
	"github.com/Sternrassler/plex-added-date/pkg/client"
	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/logging"
	"github.com/Sternrassler/plex-added-date/pkg/selection"
)

// Exit codes.
const (
	exitOK      = 0
	exitRuntime = 1
	exitAbort   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

// usageError marks a failure that happened before any work started.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs marks positional argument errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func exitCode(err error) int {
	var (
		usageErr *usageError
		batchErr *batch.ValidationError
		libErr   *library.ValidationError
	)
	switch {
	case errors.As(err, &usageErr),
		errors.As(err, &batchErr),
		errors.As(err, &libErr),
		errors.Is(err, config.ErrMissingCredentials):
		return exitAbort
	default:
		return exitRuntime
	}
}

// app carries state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
	redis      *redis.Client
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "plexdate",
		Short:         "Batch edit the addedAt date of Plex library items",
		Long:          "plexdate lists Plex library sections, builds selections of items and overwrites their addedAt date, optionally locking the field.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.redis != nil {
				a.redis.Close()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/plexdate/config.yaml)")
	pf.String("base-url", "", "Plex server URL (overrides PLEX_BASE_URL)")
	pf.String("token", "", "Plex token (overrides PLEX_TOKEN)")
	pf.String("log-level", "", "Log level: debug, info, warn, error, disabled")
	pf.Bool("log-pretty", false, "Human readable logs on stderr")
	pf.String("redis-addr", "", "Redis address for the page cache and saved selections")
	pf.String("timezone", "", "Timezone for dates, e.g. Europe/Berlin (default local)")

	root.AddCommand(
		newUpdateCmd(a),
		newSectionsCmd(a),
		newListCmd(a),
		newSelectCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return &usageError{err: err}
	}
	a.cfg = cfg

	if _, err := logging.ParseLevel(logging.LogLevel(cfg.Logging.Level)); err != nil {
		return &usageError{err: err}
	}
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: a.stderr,
	})
	a.logger = logging.NewLogger("cli")
	return nil
}

// libraryClient connects to the configured server.
func (a *app) libraryClient() (*library.Client, error) {
	if err := a.cfg.RequireServer(); err != nil {
		return nil, err
	}

	clientCfg := a.cfg.ClientConfig()
	transportLogger := logging.NewLogger("client")
	clientCfg.Logger = &transportLogger

	conn, err := client.New(clientCfg)
	if err != nil {
		return nil, &usageError{err: err}
	}
	return library.New(conn, logging.NewLogger("library")), nil
}

// redisClient returns the configured Redis connection, or nil when Redis is
// not configured.
func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil || a.cfg.Redis.Addr == "" {
		return a.redis, nil
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
	}

	a.redis = rc
	return rc, nil
}

// cacheStore is Redis-backed when Redis is configured.
func (a *app) cacheStore(ctx context.Context) (cache.Store, error) {
	rc, err := a.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return cache.NewMemoryStore(), nil
	}
	return cache.NewRedisStore(rc), nil
}

// selectionStore requires Redis; selections live nowhere else.
func (a *app) selectionStore(ctx context.Context) (*selection.RedisStore, error) {
	rc, err := a.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, usagef("saved selections need Redis, set --redis-addr or redis.addr")
	}
	return selection.NewRedisStore(rc, a.cfg.Redis.SelectionTTL), nil
}

func (a *app) location() (*time.Location, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, &usageError{err: err}
	}
	return loc, nil
}

// parseIDs accepts ids separated by commas or whitespace, across any number
// of flag values.
func parseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, field := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil || id <= 0 {
				return nil, usagef("invalid id %q", field)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// filterFlags are shared by the commands that query a section.
type filterFlags struct {
	sectionID     int
	itemType      string
	year          int
	pageSize      int
	sort          string
	titleContains string
}

func (f *filterFlags) register(cmd *cobra.Command, defaultPageSize int) {
	cmd.Flags().IntVar(&f.sectionID, "section-id", 0, "Plex library section id (e.g. 1 for Movies)")
	cmd.Flags().StringVar(&f.itemType, "type", "movie", "Item type: movie (1) or show (2)")
	cmd.Flags().IntVar(&f.year, "year", 0, "Filter by year (server-side)")
	cmd.Flags().IntVar(&f.pageSize, "page-size", defaultPageSize, "Fetch page size")
	cmd.Flags().StringVar(&f.sort, "sort", library.DefaultSort, "Sort key, e.g. addedAt:desc or titleSort:asc")
	cmd.Flags().StringVar(&f.titleContains, "title-contains", "", "Filter by title substring (client-side)")
}

func (f *filterFlags) filterConfig() (library.FilterConfig, error) {
	if f.sectionID <= 0 {
		return library.FilterConfig{}, usagef("--section-id is required")
	}
	itemType, err := library.ParseItemType(f.itemType)
	if err != nil {
		return library.FilterConfig{}, &usageError{err: err}
	}
	if f.pageSize <= 0 {
		return library.FilterConfig{}, usagef("--page-size must be positive")
	}
	cfg := library.FilterConfig{
		SectionID: f.sectionID,
		Type:      itemType,
		Year:      f.year,
		PageSize:  f.pageSize,
		Sort:      f.sort,
		Title:     f.titleContains,
	}
	if err := cfg.Validate(); err != nil {
		return library.FilterConfig{}, err
	}
	return cfg, nil
}
