// Command asynclient fetches one or more URLs concurrently over
// HTTP/1.0 and prints their bodies in argument order.
//
//	asynclient -H "Accept: text/plain" --request-timeout 5s example.com example.org
//
// Every flag can also be set through an ASYNCLIENT_* environment
// variable, a dotenv file or a config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/adamwoolhether/asynclient"
	"github.com/adamwoolhether/asynclient/client"
	"github.com/adamwoolhether/asynclient/client/wire"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "asynclient:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args, stderr)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if dropped := cfg.droppedSettings(); len(dropped) > 0 {
		logger.Warn("ignoring unknown settings", "keys", dropped)
	}

	opts, err := cfg.clientOptions()
	if err != nil {
		return err
	}

	c, err := asynclient.NewClient(append(opts, client.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	if cfg.OutputDir != "" {
		return download(ctx, c, cfg.URLs, cfg.OutputDir, logger)
	}

	pending := make([]*client.Pending, len(cfg.URLs))
	for i, target := range cfg.URLs {
		pending[i] = c.Go(ctx, target)
	}

	resps, err := client.Gather(ctx, pending...)
	for _, resp := range resps {
		if resp == nil {
			continue
		}
		if cfg.Include {
			writeHead(stdout, resp)
		}
		if _, werr := stdout.Write(resp.Body); werr != nil {
			return fmt.Errorf("writing output: %w", werr)
		}
	}

	return err
}

func writeHead(w io.Writer, resp *client.Response) {
	fmt.Fprintf(w, "%s %d %s\r\n", resp.Proto, resp.StatusCode, resp.Reason)
	resp.Header.Each(func(name, value string) {
		fmt.Fprintf(w, "%s: %s\r\n", name, value)
	})
	fmt.Fprint(w, "\r\n")
}

// download saves each target under dir, named after the last path
// segment of its URL. Repeated names get a numeric suffix.
func download(ctx context.Context, c *client.Client, targets []string, dir string, logger *slog.Logger) error {
	names, err := fileNames(targets)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			dest := filepath.Join(dir, names[i])
			if err := c.Download(ctx, target, dest); err != nil {
				return fmt.Errorf("%s: %w", target, err)
			}
			logger.Info("saved", "url", target, "path", dest)

			return nil
		})
	}

	return g.Wait()
}

// fileNames picks one distinct file name per target.
func fileNames(targets []string) ([]string, error) {
	names := make([]string, len(targets))
	seen := make(map[string]bool, len(targets))
	for i, target := range targets {
		u, err := wire.ParseURL(target)
		if err != nil {
			return nil, err
		}

		name, err := fileName(u)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target, err)
		}

		base, ext := name, path.Ext(name)
		base = strings.TrimSuffix(base, ext)
		for n := 1; seen[name]; n++ {
			name = fmt.Sprintf("%s-%d%s", base, n, ext)
		}
		seen[name] = true
		names[i] = name
	}

	return names, nil
}

func fileName(u wire.URL) (string, error) {
	p, _, _ := strings.Cut(u.PathAndQuery, "?")
	name := path.Base(p)
	switch name {
	case "/", ".":
		return "index.html", nil
	case "..":
		return "", fmt.Errorf("no file name in path %q", p)
	}

	return name, nil
}
