package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/protocol"
	"github.com/lxr-go-scm/gitfetch/repository/disk"
	"github.com/lxr-go-scm/gitfetch/transport"
)

func cmdFetchPack(args []string) error {
	fs := pflag.NewFlagSet("fetch-pack", pflag.ExitOnError)
	common := bindCommonFlags(fs)
	out := fs.String("output", "fetched.pack", "path to write the resulting packfile to")
	haves := fs.StringSlice("have", nil, "sha of an object the client already has (repeatable)")
	localRepo := fs.String("local-repo", "", "path to a local .git directory to derive have lines from")
	haveFrom := fs.String("have-from", "", "sha of a local commit to walk for have lines (requires --local-repo)")
	lookback := fs.Int("lookback", 32, "number of first-parent commits to walk from --have-from")
	deepen := fs.Int("deepen", 0, "request a shallow fetch of this depth; 0 disables shallowing")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: gitfetch fetch-pack [options] <git-url> <want>...")
		fs.PrintDefaults()
		os.Exit(1)
	}
	cfg, err := loadConfig(*common.configPath)
	if err != nil {
		return err
	}

	var payload protocol.FetchPayload
	caps := cfg.FetchCapabilities()
	for i, wantHex := range fs.Args()[1:] {
		id, err := object.DecodeID(wantHex)
		if err != nil {
			return fmt.Errorf("parse want %q: %w", wantHex, err)
		}
		// Protocol v2 negotiates capabilities during the capability
		// advertisement, not on the want line, so only v1 attaches
		// caps to the first want.
		if i == 0 && !*common.protoV2 {
			payload.AddWant(id, caps)
		} else {
			payload.AddWant(id, nil)
		}
	}
	for _, haveHex := range *haves {
		id, err := object.DecodeID(haveHex)
		if err != nil {
			return fmt.Errorf("parse have %q: %w", haveHex, err)
		}
		payload.AddHave(id)
	}
	if *haveFrom != "" {
		if *localRepo == "" {
			return fmt.Errorf("--have-from requires --local-repo")
		}
		repo, err := disk.Open(*localRepo)
		if err != nil {
			return fmt.Errorf("open local repo %q: %w", *localRepo, err)
		}
		defer repo.Close()
		startID, err := object.DecodeID(*haveFrom)
		if err != nil {
			return fmt.Errorf("parse have-from %q: %w", *haveFrom, err)
		}
		commits, err := repo.ListCommitHave(startID, *lookback)
		if err != nil {
			return fmt.Errorf("walk local history from %q: %w", *haveFrom, err)
		}
		for _, c := range commits {
			id, err := object.Hash(c)
			if err != nil {
				return err
			}
			payload.AddHave(id)
		}
	}
	if *deepen > 0 {
		payload.AddDeepen(*deepen)
	}
	payload.AddDone()

	ctx, cancel := signalContext()
	defer cancel()

	c := &transport.Client{}
	if *common.protoV2 {
		err = c.FetchPackV2(ctx, fs.Arg(0), &payload, *out)
	} else {
		err = c.FetchPackV1(ctx, fs.Arg(0), &payload, *out)
	}
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *out)
	return nil
}
