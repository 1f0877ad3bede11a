package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/lxr-go-scm/gitfetch/packfile"
	"github.com/lxr-go-scm/gitfetch/repository/disk"
)

func cmdIndexPack(args []string) error {
	fs := pflag.NewFlagSet("index-pack", pflag.ExitOnError)
	localRepo := fs.String("local-repo", "", "path to a local .git directory to resolve thin pack delta bases from")
	fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: gitfetch index-pack [options] <pack-file> <idx-file>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	var resolve packfile.ExternalResolver
	if *localRepo != "" {
		repo, err := disk.Open(*localRepo)
		if err != nil {
			return fmt.Errorf("open local repo %q: %w", *localRepo, err)
		}
		defer repo.Close()
		resolve = repo.GetObject
	}

	if err := packfile.GenerateIdxFile(fs.Arg(0), fs.Arg(1), resolve); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", fs.Arg(1))
	return nil
}
