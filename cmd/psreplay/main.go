package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ZehenForever/psreplay-stats/internal/config"
	"github.com/ZehenForever/psreplay-stats/internal/engine"
	"github.com/ZehenForever/psreplay-stats/internal/logging"
	"github.com/ZehenForever/psreplay-stats/internal/model"
	"github.com/ZehenForever/psreplay-stats/internal/report"
	"github.com/ZehenForever/psreplay-stats/internal/source"
	"github.com/ZehenForever/psreplay-stats/internal/store"
	"github.com/ZehenForever/psreplay-stats/internal/tui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type app struct {
	cfg    config.Config
	log    *log.Logger
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cfg, cfgPath, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v (using defaults)\n", err)
	}
	a := &app{cfg: cfg, log: logging.NewWithOutput(stderr, cfg.Debug), stdout: stdout, stderr: stderr}
	if cfgPath != "" {
		a.log.WithField("path", cfgPath).Debug("config loaded")
	}

	switch args[0] {
	case "parse":
		return a.runParse(args[1:])
	case "export":
		return a.runExport(args[1:])
	case "view":
		return a.runView(args[1:])
	case "history":
		return a.runHistory(args[1:])
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "psreplay parse   (--url <replay url> | --file <path>) [--json] [--save] [--until-turn N] [--follow]")
	fmt.Fprintln(w, "psreplay export  (--url <replay url> | --file <path>) --side p1|p2|<player>")
	fmt.Fprintln(w, "psreplay view    (--url <replay url> | --file <path>) [--follow]")
	fmt.Fprintln(w, "psreplay history [--limit N] [--show <replay id>]")
}

// inputFlags are shared by every command that reads a replay.
type inputFlags struct {
	url                string
	file               string
	untilTurn          int
	rosterFromSwitches bool
}

func (in *inputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&in.url, "url", "", "replay page URL")
	fs.StringVar(&in.file, "file", "", "local battle log (.log) or saved replay (.json)")
	fs.IntVar(&in.untilTurn, "until-turn", 0, "stop after turn N (0 disables)")
	fs.BoolVar(&in.rosterFromSwitches, "roster-from-switches", false, "build rosters from switch-ins when there is no team preview")
}

func (in *inputFlags) validate() error {
	switch {
	case in.url == "" && in.file == "":
		return errors.New("one of --url or --file is required")
	case in.url != "" && in.file != "":
		return errors.New("--url and --file are mutually exclusive")
	}
	return nil
}

func (in *inputFlags) options(rep *source.Replay) engine.Options {
	opts := engine.Options{UntilTurn: in.untilTurn, RosterFromSwitches: in.rosterFromSwitches}
	if rep != nil {
		opts.Format = rep.Format
	}
	return opts
}

func startFromEnd(start string) (bool, error) {
	switch strings.ToLower(start) {
	case "", "begin", "beginning", "start":
		return false, nil
	case "end":
		return true, nil
	default:
		return false, fmt.Errorf("invalid --start value %q (expected begin|end)", start)
	}
}

func (a *app) runParse(args []string) int {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var in inputFlags
	in.register(fs)
	asJSON := fs.Bool("json", false, "print the match result as JSON")
	save := fs.Bool("save", false, "store the result in the local match history")
	follow := fs.Bool("follow", false, "follow a battle log file that is still being written")
	start := fs.String("start", "", "when following, start at begin or end (default: begin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := in.validate(); err != nil {
		fmt.Fprintln(a.stderr, err.Error())
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *follow {
		if in.file == "" {
			fmt.Fprintln(a.stderr, "--follow requires --file")
			return 2
		}
		fromEnd, err := startFromEnd(*start)
		if err != nil {
			fmt.Fprintln(a.stderr, err.Error())
			return 2
		}
		res, err := a.follow(ctx, in, fromEnd, func(res *model.MatchResult) {
			_ = a.render(res, *asJSON)
			fmt.Fprintln(a.stdout)
		})
		if err != nil {
			fmt.Fprintf(a.stderr, "follow: %v\n", err)
			return 1
		}
		if *save {
			return a.save(ctx, loaded{label: in.file, id: replayIDFor(in, nil)}, res)
		}
		return 0
	}

	ld, err := a.load(ctx, in)
	if err != nil {
		return a.fail(err)
	}
	res := engine.ParseLog(ld.replay.Log, in.options(ld.replay))
	if err := a.render(res, *asJSON); err != nil {
		fmt.Fprintf(a.stderr, "write: %v\n", err)
		return 1
	}
	if *save {
		return a.save(ctx, ld, res)
	}
	return 0
}

func (a *app) runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var in inputFlags
	in.register(fs)
	sideFlag := fs.String("side", "", "p1, p2 or a player name")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := in.validate(); err != nil {
		fmt.Fprintln(a.stderr, err.Error())
		return 2
	}
	if *sideFlag == "" {
		fmt.Fprintln(a.stderr, "--side is required")
		return 2
	}

	ld, err := a.load(context.Background(), in)
	if err != nil {
		return a.fail(err)
	}
	res := engine.ParseLog(ld.replay.Log, in.options(ld.replay))
	side, ok := resolveSide(res, *sideFlag)
	if !ok {
		fmt.Fprintf(a.stderr, "no player %q in this replay\n", *sideFlag)
		return 1
	}
	fmt.Fprint(a.stdout, report.ExportTSV(res.Players[side]))
	return 0
}

func (a *app) runView(args []string) int {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var in inputFlags
	in.register(fs)
	follow := fs.Bool("follow", false, "follow a battle log file that is still being written")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := in.validate(); err != nil {
		fmt.Fprintln(a.stderr, err.Error())
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := tui.Options{Title: titleFor(in)}
	if *follow {
		if in.file == "" {
			fmt.Fprintln(a.stderr, "--follow requires --file")
			return 2
		}
		updates := make(chan *model.MatchResult, 1)
		go func() {
			defer close(updates)
			_, err := a.follow(ctx, in, false, func(res *model.MatchResult) {
				select {
				case updates <- res:
				case <-ctx.Done():
				}
			})
			if err != nil {
				a.log.WithError(err).Warn("follow stopped")
			}
		}()
		opts.Updates = updates
	} else {
		opts.Load = func(ctx context.Context) (*model.MatchResult, error) {
			ld, err := a.load(ctx, in)
			if err != nil {
				if errors.Is(err, source.ErrUnavailable) {
					return nil, source.ErrUnavailable
				}
				return nil, err
			}
			return engine.ParseLog(ld.replay.Log, in.options(ld.replay)), nil
		}
	}

	// the TUI owns the terminal; keep log lines out of it
	a.log.SetOutput(io.Discard)
	if err := tui.Run(opts); err != nil {
		fmt.Fprintf(a.stderr, "view: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	limit := fs.Int("limit", 20, "number of matches to list (0 for all)")
	show := fs.String("show", "", "print one stored match by replay id")
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	st, err := openStore(a.cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(a.stderr, "history: %v\n", err)
		return 1
	}
	defer st.Close()
	ctx := context.Background()

	if *show != "" {
		rec, err := st.GetMatch(ctx, *show)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(a.stderr, "no stored match %q\n", *show)
				return 1
			}
			fmt.Fprintf(a.stderr, "history: %v\n", err)
			return 1
		}
		if err := a.render(rec.Result, *asJSON); err != nil {
			fmt.Fprintf(a.stderr, "write: %v\n", err)
			return 1
		}
		return 0
	}

	recs, err := st.ListMatches(ctx, *limit)
	if err != nil {
		fmt.Fprintf(a.stderr, "history: %v\n", err)
		return 1
	}
	if *asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(recs); err != nil {
			fmt.Fprintf(a.stderr, "write: %v\n", err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Saved\tReplay\tFormat\tP1\tP2\tWinner\tFaints")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			rec.SavedAt.Local().Format(time.DateTime),
			rec.ReplayID,
			rec.Format,
			rec.P1,
			rec.P2,
			rec.Winner,
			rec.Kills,
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(a.stderr, "write: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) render(res *model.MatchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return report.WriteText(a.stdout, res)
}

// fail reports a load error. Retrieval failures collapse to a single
// human-readable line; the details go to the debug log.
func (a *app) fail(err error) int {
	if errors.Is(err, source.ErrUnavailable) {
		a.log.WithError(err).Debug("retrieval failed")
		fmt.Fprintln(a.stderr, source.ErrUnavailable.Error())
		return 1
	}
	fmt.Fprintf(a.stderr, "%v\n", err)
	return 1
}

func (a *app) save(ctx context.Context, ld loaded, res *model.MatchResult) int {
	if ld.id == "" {
		fmt.Fprintln(a.stderr, "cannot tell the replay id; not saved")
		return 1
	}
	st, err := openStore(a.cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(a.stderr, "save: %v\n", err)
		return 1
	}
	defer st.Close()

	rec, err := st.SaveMatch(ctx, ld.id, ld.label, res)
	if err != nil {
		fmt.Fprintf(a.stderr, "save: %v\n", err)
		return 1
	}
	a.log.WithFields(log.Fields{"replay": rec.ReplayID, "id": rec.ID}).Info("match saved")
	return 0
}

func resolveSide(res *model.MatchResult, want string) (string, bool) {
	if _, ok := res.Players[want]; ok {
		return want, true
	}
	for _, side := range res.Sides() {
		if strings.EqualFold(res.Players[side].Name, want) {
			return side, true
		}
	}
	return "", false
}
