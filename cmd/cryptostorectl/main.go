// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// cryptostorectl is the maintenance tool for encrypted crypto stores.
package main

import (
	"os"

	"github.com/mutecomm/cryptostore/ctlengine"
	"github.com/mutecomm/cryptostore/log"
	"github.com/mutecomm/cryptostore/release"
	"github.com/mutecomm/cryptostore/util"
	"github.com/mutecomm/cryptostore/util/interrupt"
	"github.com/urfave/cli"
)

func init() {
	cli.VersionPrinter = release.PrintVersion
}

func cryptostorectlMain() error {
	defer log.Flush()

	// create control engine
	ce := ctlengine.New()
	defer ce.Close()

	// add interrupt handler
	interrupt.AddInterruptHandler(func() {
		log.Infof("gracefully shutting down...")
		ce.Close()
	})

	// start control engine
	go func() {
		interrupt.Shutdown(ce.Start(os.Args))
	}()

	return <-interrupt.ShutdownChannel
}

func main() {
	// work around defer not working after os.Exit()
	if err := cryptostorectlMain(); err != nil {
		util.Fatal(err)
	}
}
