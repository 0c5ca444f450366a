package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gerrymanoim/to-listen/internal/secrets"
	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/gerrymanoim/to-listen/internal/spotify"
	"github.com/gerrymanoim/to-listen/internal/store"
	"github.com/gerrymanoim/to-listen/internal/tokens"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	secrets secrets.Provider
	logger  *log.Logger
	output  io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config
	Secrets secrets.Provider
	Logger  *log.Logger
	Output  io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Secrets == nil {
		opts.Secrets = secrets.Env{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:  opts.Config,
		secrets: opts.Secrets,
		logger:  opts.Logger,
		output:  opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, syncCommand, processCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// deps holds the per-command application dependencies built over an
// open database connection.
type deps struct {
	db      *sql.DB
	store   *store.Store
	manager *tokens.Manager
	client  *spotify.Client
}

// buildDeps opens the database and assembles the store, token
// manager, and streaming client. The caller closes the connection.
func (r *Runner) buildDeps() (*deps, error) {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	st := store.New(store.NewDocuments(db))
	return &deps{
		db:      db,
		store:   st,
		manager: tokens.New(st, r.secrets, r.config.Spotify, r.logger),
		client:  spotify.NewClient(r.config.Spotify.BaseURL, r.logger),
	}, nil
}

func (d *deps) Close() {
	d.db.Close()
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
