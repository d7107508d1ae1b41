// Command qbd starts the paging cache engine against a pre-allocated
// cache file and one or more store segments. It does not attach to a
// kernel NBD device node itself — that belongs to a transport adapter
// built on top of this package's engine — but exercises the same
// engine lifecycle such an adapter would drive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"qbd/config"
	"qbd/engine"
)

func main() {
	app := cli.NewApp()
	app.Name = "qbd"
	app.Usage = "user-space block device paging cache engine"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "nbd-path", Usage: "kernel NBD device node to attach to"},
		cli.StringFlag{Name: "cache-path", Usage: "path to the pre-allocated cache file"},
		cli.StringFlag{Name: "cache-size", Usage: "total size of the cache file, e.g. 64MiB"},
		cli.StringFlag{Name: "page-size", Usage: "page size P, e.g. 1MiB", Value: ""},
		cli.StringSliceFlag{Name: "store-url", Usage: "file:///path?size=<bytes>, repeatable, order-significant"},
		cli.StringFlag{Name: "metrics-listen", Usage: "address to serve /metrics on; unset disables metrics"},
		cli.StringFlag{Name: "debug-level", Usage: "off|error|warn|info|debug|trace", Value: "off"},
	}
	app.Action = runEngine

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runEngine(ctx *cli.Context) error {
	cfg, err := config.Load(config.Options{
		NBDPath:       ctx.String("nbd-path"),
		CachePath:     ctx.String("cache-path"),
		CacheSize:     ctx.String("cache-size"),
		PageSize:      ctx.String("page-size"),
		StoreURLs:     ctx.StringSlice("store-url"),
		MetricsListen: ctx.String("metrics-listen"),
		DebugLevel:    ctx.String("debug-level"),
	})
	if err != nil {
		return err
	}

	e, err := engine.Open(cfg)
	if err != nil {
		return err
	}
	e.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return e.Stop(context.Background())
}
