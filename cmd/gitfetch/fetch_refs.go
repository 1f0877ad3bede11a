package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/lxr-go-scm/gitfetch/transport"
)

func cmdFetchRefs(args []string) error {
	fs := pflag.NewFlagSet("fetch-refs", pflag.ExitOnError)
	common := bindCommonFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: gitfetch fetch-refs [options] <git-url>")
		fs.PrintDefaults()
		os.Exit(1)
	}
	if _, err := loadConfig(*common.configPath); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	c := &transport.Client{}
	refs, err := c.FetchRefs(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	for id, name := range refs {
		fmt.Printf("%s %s\n", id, name)
	}
	return nil
}
