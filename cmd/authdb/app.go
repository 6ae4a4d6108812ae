package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/authdb"
	"github.com/minus-twelve/authdb/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

const storeKey = "store"

func newApp(stdin io.Reader, stdout io.Writer) *cli.App {
	return &cli.App{
		Name:   "authdb",
		Usage:  "session-token store backed by Redis",
		Reader: stdin,
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"AUTHDB_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format (json, yaml)",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "warn",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (json, text)",
				Value: "text",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := authdb.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			c.App.Metadata = map[string]any{
				"config": cfg,
				"logger": newLogger(c.App.ErrWriter, c.String("log-level"), c.String("log-format")),
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if s, ok := c.App.Metadata[storeKey].(*authdb.Store); ok {
				return s.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			getCommand(),
			addCommand(),
			removeCommand(),
			ttlCommand(),
			serveCommand(),
		},
	}
}

func logger(c *cli.Context) *slog.Logger {
	return c.App.Metadata["logger"].(*slog.Logger)
}

// openStore builds the store on first use and keeps it for After to close.
func openStore(c *cli.Context, metrics *authdb.Metrics) (*authdb.Store, error) {
	cfg := c.App.Metadata["config"].(types.Config)
	s, err := authdb.CreateStore(cfg, logger(c), metrics)
	if err != nil {
		return nil, err
	}
	c.App.Metadata[storeKey] = s
	return s, nil
}

func tokenArg(c *cli.Context) (string, error) {
	token := c.Args().First()
	if token == "" {
		return "", errors.New("token argument is required")
	}
	return token, nil
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print the account stored under a token",
		ArgsUsage: "<token>",
		Action: func(c *cli.Context) error {
			token, err := tokenArg(c)
			if err != nil {
				return err
			}
			s, err := openStore(c, nil)
			if err != nil {
				return err
			}
			account, err := s.GetAccount(c.Context, token)
			if err != nil {
				return err
			}
			return writeOutput(c.App.Writer, c.String("output"), account)
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "store an account (JSON) under a token; reads stdin when no JSON argument is given",
		ArgsUsage: "<token> [json]",
		Action: func(c *cli.Context) error {
			token, err := tokenArg(c)
			if err != nil {
				return err
			}

			var src io.Reader = c.App.Reader
			if raw := c.Args().Get(1); raw != "" {
				src = strings.NewReader(raw)
			}
			var account types.Account
			if err := json.NewDecoder(src).Decode(&account); err != nil {
				return fmt.Errorf("decode account: %w", err)
			}

			s, err := openStore(c, nil)
			if err != nil {
				return err
			}
			return s.AddAccount(c.Context, token, account)
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "delete the account stored under a token",
		ArgsUsage: "<token>",
		Action: func(c *cli.Context) error {
			token, err := tokenArg(c)
			if err != nil {
				return err
			}
			s, err := openStore(c, nil)
			if err != nil {
				return err
			}
			return s.RemoveAccount(c.Context, token)
		},
	}
}

func ttlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ttl",
		Usage:     "print how long a token remains valid",
		ArgsUsage: "<token>",
		Action: func(c *cli.Context) error {
			token, err := tokenArg(c)
			if err != nil {
				return err
			}
			s, err := openStore(c, nil)
			if err != nil {
				return err
			}
			remaining, err := s.Expiry(c.Context, token)
			if err != nil {
				return err
			}
			seconds, expires := authdb.TTLSeconds(remaining)
			return writeOutput(c.App.Writer, c.String("output"), map[string]any{
				"token":       authdb.MaskToken(token),
				"ttl_seconds": seconds,
				"expires":     expires,
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the account API and /metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				Value:   ":8080",
				EnvVars: []string{"AUTHDB_ADDR"},
			},
			&cli.StringFlag{
				Name:  "cookie",
				Usage: "session cookie name accepted by /me",
				Value: "session",
			},
		},
		Action: func(c *cli.Context) error {
			log := logger(c)
			reg := prometheus.NewRegistry()
			metrics, err := authdb.NewMetrics(reg)
			if err != nil {
				return err
			}
			s, err := openStore(c, metrics)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			r := gin.New()
			r.Use(gin.Recovery(), authdb.RequestID())
			h := authdb.NewSessionHandler(s.TokenStore, authdb.SessionConfig{CookieName: c.String("cookie")}, log)
			h.Register(r)
			r.GET("/me", h.RequireAccount(), func(ctx *gin.Context) {
				account, _ := authdb.AccountFrom[types.Account](ctx)
				ctx.JSON(http.StatusOK, account)
			})
			r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

			srv := &http.Server{Addr: c.String("addr"), Handler: r, ReadHeaderTimeout: 10 * time.Second}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", slog.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			log.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
}
