package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/tracelens/tracelens/pkg/capture"
	"github.com/tracelens/tracelens/pkg/derive"
	"github.com/tracelens/tracelens/pkg/marker"
	"github.com/tracelens/tracelens/pkg/schema"
)

var cfg struct {
	verbose    bool
	schemaFile string
	thread     int

	markers struct {
		capture string
		start   float64
		end     float64
		search  []string
	}
	tree struct {
		capture    string
		invert     bool
		minPercent float64
	}
	timing struct {
		capture string
	}
	tracks struct {
		capture string
		name    string
	}
}

var logger = log.NewLogfmtLogger(os.Stderr)

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Inspection tooling for tracelens, the performance-capture derivation core.").UsageWriter(os.Stdout)
	app.HelpFlag.Short('h')
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("0").BoolVar(&cfg.verbose)
	app.Flag("schema", "Path to an extra marker schema YAML file.").StringVar(&cfg.schemaFile)
	app.Flag("thread", "Thread index to inspect.").Default("0").IntVar(&cfg.thread)

	markersCmd := app.Command("markers", "Print the filtered marker table.")
	markersCmd.Arg("capture", "Capture JSON file.").Required().ExistingFileVar(&cfg.markers.capture)
	markersCmd.Flag("start", "Committed range start; defaults to the capture start.").Default("NaN").Float64Var(&cfg.markers.start)
	markersCmd.Flag("end", "Committed range end; defaults to the capture end.").Default("NaN").Float64Var(&cfg.markers.end)
	markersCmd.Flag("search", "Free-text search pattern; repeatable.").StringsVar(&cfg.markers.search)

	treeCmd := app.Command("tree", "Print the aggregated call tree.")
	treeCmd.Arg("capture", "Capture JSON file.").Required().ExistingFileVar(&cfg.tree.capture)
	treeCmd.Flag("invert", "Invert the call stacks.").BoolVar(&cfg.tree.invert)
	treeCmd.Flag("min-percent", "Hide nodes below this share of the total weight.").Default("0").Float64Var(&cfg.tree.minPercent)

	timingCmd := app.Command("timing", "Print the marker timing layout.")
	timingCmd.Arg("capture", "Capture JSON file.").Required().ExistingFileVar(&cfg.timing.capture)

	tracksCmd := app.Command("tracks", "Print a schema-declared custom track's sample series.")
	tracksCmd.Arg("capture", "Capture JSON file.").Required().ExistingFileVar(&cfg.tracks.capture)
	tracksCmd.Arg("name", "Marker name of the track.").Required().StringVar(&cfg.tracks.name)

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	if !cfg.verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	var err error
	switch command {
	case markersCmd.FullCommand():
		err = printMarkers()
	case treeCmd.FullCommand():
		err = printTree()
	case timingCmd.FullCommand():
		err = printTiming()
	case tracksCmd.FullCommand():
		err = printTrack()
	}
	if err != nil {
		level.Error(logger).Log("msg", "command failed", "err", err)
		os.Exit(1)
	}
}

// loadDeriver reads the capture and schema files and builds the derivation
// graph for the selected thread.
func loadDeriver(path string) (*derive.Deriver, *capture.Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	capt, err := capture.Decode(f)
	if err != nil {
		return nil, nil, err
	}
	if cfg.thread < 0 || cfg.thread >= len(capt.Threads) {
		return nil, nil, fmt.Errorf("capture has %d threads, --thread=%d is out of range", len(capt.Threads), cfg.thread)
	}

	var schemas []schema.Schema
	if cfg.schemaFile != "" {
		sf, err := os.Open(cfg.schemaFile)
		if err != nil {
			return nil, nil, err
		}
		defer sf.Close()
		if schemas, err = schema.DecodeYAML(sf); err != nil {
			return nil, nil, err
		}
	}
	registry, err := schema.NewRegistry(schemas...)
	if err != nil {
		return nil, nil, err
	}

	thread := capt.Threads[cfg.thread]
	level.Debug(logger).Log("msg", "capture loaded", "product", capt.Product, "threads", len(capt.Threads), "thread", thread.Name)
	return derive.New(logger, capt, thread, registry, derive.Config{}, nil), capt, nil
}

func fullState(capt *capture.Capture) derive.State {
	return derive.State{Range: capt.Range()}
}

func printMarkers() error {
	d, capt, err := loadDeriver(cfg.markers.capture)
	if err != nil {
		return err
	}
	s := fullState(capt)
	if !isNaN(cfg.markers.start) {
		s.Range.Start = cfg.markers.start
	}
	if !isNaN(cfg.markers.end) {
		s.Range.End = cfg.markers.end
	}
	if len(cfg.markers.search) > 0 {
		s.Search = marker.NewSearchFilter(cfg.markers.search...)
	}
	idx := d.TableIndexes(s)
	writeMarkerTable(os.Stdout, d, capt, idx)
	return nil
}

func printTree() error {
	d, capt, err := loadDeriver(cfg.tree.capture)
	if err != nil {
		return err
	}
	s := fullState(capt)
	s.Invert = cfg.tree.invert
	writeTree(os.Stdout, d.CallTree(s), cfg.tree.minPercent)
	return nil
}

func printTiming() error {
	d, capt, err := loadDeriver(cfg.timing.capture)
	if err != nil {
		return err
	}
	writeTiming(os.Stdout, d.Timing(fullState(capt)))
	return nil
}

func printTrack() error {
	d, _, err := loadDeriver(cfg.tracks.capture)
	if err != nil {
		return err
	}
	writeTrack(os.Stdout, d.TrackSamples(cfg.tracks.name))
	return nil
}
