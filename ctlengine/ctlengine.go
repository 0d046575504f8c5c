// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctlengine implements the command engine for cryptostorectl.
package ctlengine

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mutecomm/cryptostore/cipher"
	"github.com/mutecomm/cryptostore/config"
	"github.com/mutecomm/cryptostore/cryptostore"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/release"
	"github.com/mutecomm/cryptostore/util"
	"github.com/mutecomm/cryptostore/util/bzero"
	"github.com/urfave/cli"
)

var defaultConfigFile = filepath.Join(config.DefaultHomeDir(), "config.yaml")

// CtlEngine abstracts a cryptostorectl command engine.
type CtlEngine struct {
	prepared bool
	config   *config.Config
	out      io.Writer

	mu    sync.Mutex // guards store
	store *cryptostore.Store

	app *cli.App
}

// loadConfig reads the configuration file, if it exists, and applies the
// global flags on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if filename := c.GlobalString("config"); filename != "" {
		_, err := os.Stat(filename)
		if err == nil {
			cfg, err = config.Load(filename)
			if err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, log.Error(err)
		}
	}
	if c.GlobalIsSet("engine") {
		cfg.Engine = c.GlobalString("engine")
	}
	if c.GlobalIsSet("dir") {
		cfg.Dir = c.GlobalString("dir")
	}
	if c.GlobalIsSet("name") {
		cfg.Name = c.GlobalString("name")
	}
	if c.GlobalIsSet("iterations") {
		cfg.KDFIterations = c.GlobalInt("iterations")
	}
	if c.GlobalIsSet("loglevel") {
		cfg.LogLevel = c.GlobalString("loglevel")
	}
	if c.GlobalIsSet("logdir") {
		cfg.LogDir = c.GlobalString("logdir")
	}
	if c.GlobalBool("logconsole") {
		cfg.LogConsole = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (ce *CtlEngine) prepare(c *cli.Context, openStore bool) error {
	if !ce.prepared {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if ce.out == nil {
			ce.out = os.NewFile(uintptr(c.GlobalInt("output-fd")), "output-fd")
		}

		// create the necessary directories if they don't already exist
		dirs := []string{cfg.LogDir}
		if cfg.Engine != config.EngineMemory {
			dirs = append(dirs, cfg.Dir)
		}
		if err := util.CreateDirs(dirs...); err != nil {
			return err
		}

		// initialize logging framework
		err = log.Init(cfg.LogLevel, "store", cfg.LogDir, cfg.LogConsole)
		if err != nil {
			return err
		}

		ce.config = cfg
		ce.prepared = true
	}

	// open store, if necessary
	if openStore {
		ce.mu.Lock()
		defer ce.mu.Unlock()
		if ce.store == nil {
			if err := ce.openStore(c.GlobalInt("passphrase-fd")); err != nil {
				return err
			}
		}
	}

	return nil
}

// withStore runs fn while the store cannot be closed.
func (ce *CtlEngine) withStore(fn func(w io.Writer) error) error {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.store == nil {
		return log.Error("ctlengine: store is closed")
	}
	return fn(ce.out)
}

func (ce *CtlEngine) openStore(passfd int) error {
	var (
		store *cryptostore.Store
		err   error
	)
	log.Infof("open %s", ce.config)
	if passfd < 0 {
		store, err = cryptostore.Open(ce.config.Opener(), ce.config.Name,
			ce.config.Options()...)
	} else {
		log.Infof("read passphrase from fd %d", passfd)
		var passphrase []byte
		passphrase, err = util.Readline(os.NewFile(uintptr(passfd), "passphrase-fd"))
		if err != nil {
			return err
		}
		defer bzero.Bytes(passphrase)
		store, err = cryptostore.OpenWithPassphrase(ce.config.Opener(),
			ce.config.Name, passphrase, ce.config.Options()...)
	}
	if err != nil {
		return err
	}
	// loads the account info and the tracked users
	if _, err := store.LoadAccount(); err != nil {
		store.Close()
		return err
	}
	ce.store = store
	return nil
}

func noArgs(c *cli.Context) error {
	if len(c.Args()) > 0 {
		return log.Errorf("superfluous argument(s): %s", strings.Join(c.Args(), " "))
	}
	return nil
}

// New returns a new cryptostorectl engine.
func New() *CtlEngine {
	var ce CtlEngine
	ce.app = cli.NewApp()
	ce.app.Usage = "tool to inspect and maintain encrypted crypto stores"
	ce.app.Version = release.Version
	ce.app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: defaultConfigFile,
			Usage: "YAML configuration file (ignored, if it doesn't exist)",
		},
		cli.StringFlag{
			Name:  "engine",
			Usage: "storage engine {memory, bolt, sqlite, pebble}",
		},
		cli.StringFlag{
			Name:  "dir",
			Usage: "directory of the store",
		},
		cli.StringFlag{
			Name:  "name",
			Usage: "name of the store",
		},
		cli.IntFlag{
			Name:  "iterations",
			Usage: "number of KDF iterations used for new passphrase stores",
		},
		cli.IntFlag{
			Name:  "output-fd",
			Value: 1,
			Usage: "output file descriptor",
		},
		cli.IntFlag{
			Name:  "passphrase-fd",
			Value: -1,
			Usage: "passphrase file descriptor (-1: use the default key)",
		},
		cli.StringFlag{
			Name:  "loglevel",
			Usage: "logging level {trace, debug, info, warn, error, critical}",
		},
		cli.StringFlag{
			Name:  "logdir",
			Usage: "directory to log output",
		},
		cli.BoolFlag{
			Name:  "logconsole",
			Usage: "enable logging to console",
		},
	}
	ce.app.Before = func(c *cli.Context) error {
		return ce.prepare(c, false)
	}
	ce.app.Action = func(c *cli.Context) error {
		if len(c.Args()) > 0 {
			return log.Errorf("ctlengine: unknown command '%s', try 'help'",
				strings.Join(c.Args(), " "))
		}
		return cli.ShowAppHelp(c)
	}
	ce.app.Commands = []cli.Command{
		{
			Name:  "config",
			Usage: "show effective configuration",
			Before: func(c *cli.Context) error {
				if err := noArgs(c); err != nil {
					return err
				}
				return ce.prepare(c, false)
			},
			Action: func(c *cli.Context) error {
				return ce.config.Write(ce.out)
			},
		},
		{
			Name:  "genpass",
			Usage: "generate a random passphrase for --passphrase-fd",
			Before: func(c *cli.Context) error {
				if err := noArgs(c); err != nil {
					return err
				}
				return ce.prepare(c, false)
			},
			Action: func(c *cli.Context) error {
				return genpass(ce.out, cipher.RandReader)
			},
		},
		{
			Name:  "info",
			Usage: "show store summary",
			Before: func(c *cli.Context) error {
				if err := noArgs(c); err != nil {
					return err
				}
				return ce.prepare(c, true)
			},
			Action: func(c *cli.Context) error {
				return ce.withStore(ce.info)
			},
		},
		{
			Name:  "tracked",
			Usage: "list tracked users (* marks users for key query)",
			Before: func(c *cli.Context) error {
				if err := noArgs(c); err != nil {
					return err
				}
				return ce.prepare(c, true)
			},
			Action: func(c *cli.Context) error {
				return ce.withStore(ce.tracked)
			},
		},
		{
			Name:      "track",
			Usage:     "track user",
			ArgsUsage: "USER",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "dirty",
					Usage: "mark user for key query",
				},
			},
			Before: func(c *cli.Context) error {
				if len(c.Args()) != 1 {
					return log.Error("track: exactly one USER is required")
				}
				return ce.prepare(c, true)
			},
			Action: func(c *cli.Context) error {
				return ce.withStore(func(w io.Writer) error {
					return ce.track(w, c.Args().First(), c.Bool("dirty"))
				})
			},
		},
		{
			Name:  "requests",
			Usage: "list unsent secret requests",
			Before: func(c *cli.Context) error {
				if err := noArgs(c); err != nil {
					return err
				}
				return ce.prepare(c, true)
			},
			Action: func(c *cli.Context) error {
				return ce.withStore(ce.requests)
			},
		},
		{
			Name:      "devices",
			Usage:     "list devices of user",
			ArgsUsage: "USER",
			Before: func(c *cli.Context) error {
				if len(c.Args()) != 1 {
					return log.Error("devices: exactly one USER is required")
				}
				return ce.prepare(c, true)
			},
			Action: func(c *cli.Context) error {
				return ce.withStore(func(w io.Writer) error {
					return ce.devices(w, c.Args().First())
				})
			},
		},
		{
			Name:  "dump",
			Usage: "dump store metadata (no secrets) for debugging",
			Before: func(c *cli.Context) error {
				if err := noArgs(c); err != nil {
					return err
				}
				return ce.prepare(c, true)
			},
			Action: func(c *cli.Context) error {
				return ce.withStore(ce.dump)
			},
		},
		{
			Name:  "vacuum",
			Usage: "reclaim the space of deleted records",
			Before: func(c *cli.Context) error {
				if err := noArgs(c); err != nil {
					return err
				}
				return ce.prepare(c, true)
			},
			Action: func(c *cli.Context) error {
				return ce.withStore(ce.vacuum)
			},
		},
	}
	return &ce
}

// Start the cryptostorectl engine with the given args.
func (ce *CtlEngine) Start(args []string) error {
	defer ce.Close()
	ce.app.Name = args[0]
	return ce.app.Run(args)
}

// Close the store of the engine. It waits for a running command and is safe
// to call from an interrupt handler.
func (ce *CtlEngine) Close() error {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	if ce.store != nil {
		err := ce.store.Close()
		ce.store = nil
		return err
	}
	return nil
}
