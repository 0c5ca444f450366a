package main

import (
	"context"
	"fmt"

	"github.com/gerrymanoim/to-listen/internal/auth"
	"github.com/gerrymanoim/to-listen/internal/server"
	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/gerrymanoim/to-listen/internal/web"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the web front end",
		Action: r.Serve,
	}
}

// Serve starts the HTTP server hosting the linking flow and playlist
// picker.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if r.config.Identity.SigningKey == "" {
		return fmt.Errorf("%w: identity signing key is not configured", shared.ErrInvalidConfig)
	}

	d, err := r.buildDeps()
	if err != nil {
		return err
	}
	defer d.Close()

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}

	verifier := auth.NewJWTVerifier([]byte(r.config.Identity.SigningKey), r.config.Identity.Issuer)
	app := server.NewApp(verifier, d.store, d.manager, d.client, renderer, r.config.Identity.CookieName, r.logger)

	router := server.NewBasicRouter()
	router.Use(server.RequestID(), server.RequestLogger(r.logger))
	app.Register(router)

	srv := server.New(r.config.Server, router)
	r.logger.Info("listening", "addr", srv.Addr)
	return srv.ListenAndServe()
}
