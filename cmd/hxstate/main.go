package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pthm/hxstate"
	"github.com/pthm/hxstate/lib/encoding"
	"github.com/pthm/hxstate/lib/htmlstate"
	"github.com/pthm/hxstate/lib/keyinject"
	"github.com/pthm/hxstate/lib/payload"
)

const version = "0.1.0"

var errCheckFailed = errors.New("call sites without keys")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "keys":
		err = runKeys(args)
	case "inspect":
		err = runInspect(args)
	case "payload":
		err = runPayload(args)
	case "version":
		fmt.Printf("hxstate version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`hxstate - server/client state synchronization for Go pages

Usage:
  hxstate <command> [arguments]

Commands:
  keys [packages]          Stamp synchronization keys on call sites (default ./...)
  inspect <file.html>      Print the page state and hydration markers in a rendered page
  payload <dir> <route>    Print the stored payload of a pre-rendered route
  version                  Print version
  help                     Show this help

Options for keys:
  --dry-run                List call sites without writing files
  --production             Omit variable names from keys
  --check                  Exit non-zero if any call site lacks a key

Options for inspect:
  --config <file>          Config file (global name, seal key)

Options for payload:
  --codec <name>           File codec: cbor (default), json, msgpack

Examples:
  hxstate keys ./...
  hxstate keys --check ./pages/...
  hxstate inspect --config hxstate.yaml out/index.html`)
}

func runKeys(args []string) error {
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "list call sites without writing")
	production := fs.Bool("production", false, "omit variable names from keys")
	check := fs.Bool("check", false, "fail if any call site lacks a key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	patterns := fs.Args()
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	in := keyinject.New(keyinject.Options{DryRun: *dryRun, Production: *production})
	if *check {
		sites, err := in.Check(patterns...)
		if err != nil {
			return err
		}
		for _, s := range sites {
			fmt.Printf("missing key %s\n", s)
		}
		if len(sites) > 0 {
			return fmt.Errorf("%w: %d", errCheckFailed, len(sites))
		}
		return nil
	}

	sites, err := in.Inject(patterns...)
	if err != nil {
		return err
	}
	verb := "keyed"
	if *dryRun {
		verb = "would key"
	}
	for _, s := range sites {
		fmt.Printf("%s %s\n", verb, s)
	}
	fmt.Printf("%d call sites\n", len(sites))
	return nil
}

type inspectOutput struct {
	StateSize string             `json:"stateSize"`
	Transport string             `json:"transport"`
	State     *hxstate.State     `json:"state,omitempty"`
	Markers   []htmlstate.Marker `json:"markers"`
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("inspect takes one file")
	}

	cfg := hxstate.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = hxstate.LoadConfig(*configPath); err != nil {
			return err
		}
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := htmlstate.Extract(f, cfg.GlobalContext)
	if err != nil {
		return err
	}
	if !doc.HasState() {
		return htmlstate.ErrNoState
	}

	out := inspectOutput{Markers: doc.Markers}
	if doc.Sealed != "" {
		out.Transport = string(hxstate.TransportSealed)
		out.StateSize = humanize.Bytes(uint64(len(doc.Sealed)))
		if cfg.SealKey == "" {
			return fmt.Errorf("state is sealed; pass --config with seal_key")
		}
		enc, err := hxstate.NewEncoder([]byte(cfg.SealKey))
		if err != nil {
			return err
		}
		if out.State, err = hxstate.OpenState(enc, doc.Sealed, cfg.Sensitive); err != nil {
			return err
		}
	} else {
		out.Transport = string(hxstate.TransportJSON)
		out.StateSize = humanize.Bytes(uint64(len(doc.StateJSON)))
		if out.State, err = hxstate.ParseState(doc.StateJSON); err != nil {
			return err
		}
	}
	return printJSON(out)
}

func runPayload(args []string) error {
	fs := flag.NewFlagSet("payload", flag.ContinueOnError)
	codecName := fs.String("codec", "cbor", "file codec")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("payload takes a directory and a route")
	}
	codec, ok := encoding.ByName(*codecName)
	if !ok {
		return fmt.Errorf("unknown codec %q", *codecName)
	}

	store := payload.New(fs.Arg(0), payload.WithCodec(codec))
	st, err := store.Read(fs.Arg(1))
	if err != nil {
		return err
	}
	info, err := os.Stat(store.Path(fs.Arg(1)))
	if err != nil {
		return err
	}
	fmt.Printf("# %s (%s)\n", store.Path(fs.Arg(1)), humanize.Bytes(uint64(info.Size())))
	return printJSON(st)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
