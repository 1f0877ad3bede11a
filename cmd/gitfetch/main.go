// Command gitfetch drives the git:// fetch engine from the command
// line: listing a remote's refs, fetching a packfile for a set of
// wants, and generating a pack index for a packfile already on disk.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/lxr-go-scm/gitfetch/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "fetch-refs":
		err = cmdFetchRefs(os.Args[2:])
	case "fetch-pack":
		err = cmdFetchPack(os.Args[2:])
	case "index-pack":
		err = cmdIndexPack(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "gitfetch:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: gitfetch <command> [options]

Commands:
  fetch-refs  <git-url>               list a remote's advertised refs
  fetch-pack  <git-url> <want>...     fetch a packfile for the given objects
  index-pack  <pack-file> <idx-file>  generate a pack index for an existing packfile
  serve       --git-dir <path>        run a read-only upload-pack daemon for a local repo`)
}

func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// commonFlags are accepted by every subcommand that talks to a remote.
type commonFlags struct {
	configPath *string
	protoV2    *bool
}

func bindCommonFlags(fs *pflag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "path to a gitfetch YAML config file"),
		protoV2:    fs.Bool("v2", false, "speak git wire protocol v2 instead of v1"),
	}
}
