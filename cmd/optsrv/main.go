package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/rs/zerolog"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/cr-xu/optimizer/ca"
	"github.com/cr-xu/optimizer/mint"
	"github.com/cr-xu/optimizer/runlog"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "optsrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:       ":8000",
		Endpoint:   "machine",
		Gateway:    "localhost:5080",
		RateLimit:  20,
		ArchiveDir: "scans",
		IndexPath:  "scans/runs.db"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
			os.Exit(1)
		}
	}
}

func root() {
	str := `optsrv exposes an accelerator machine interface to the optimizer GUI over HTTP.
PV reads and writes go through a channel access gateway; optimization runs
are archived as FITS files and cataloged in SQLite.

Usage:
	optsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `optsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Without a configuration, the server talks to a channel access gateway on
localhost and serves the machine interface under /machine.

Config keys:
- Addr         listen address, default ":8000"
- Endpoint     URL stem for the machine interface, default "machine"
- Mock         replace the gateway with an in-memory simulator
- Gateway      host:port of the channel access gateway
- RateLimit    max gateway requests per second, <= 0 for unlimited
- ArchiveDir   directory run archives are written to
- IndexPath    SQLite run catalog, empty to disable
- EnergyPV, ChargePV, CurrentPV
               override the stock getter PVs
- LossPVs      loss monitor PVs read by the losses getter
- QuickAdd     device groups for the GUI quick-add box
- PresetsFile  yaml file of preset buttons per group
- Verbose      debug logging`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func pversion() {
	fmt.Printf("optsrv version %v\n", Version)
}

// probeGateway spins while checking that the energy PV answers through the
// gateway.  A dead gateway is not fatal; the interface comes up and reads
// null until the control system returns.
func probeGateway(client ca.Client, energyPV string, log zerolog.Logger) {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[59],
		Suffix:            " probing channel access gateway",
		StopCharacter:     "OK",
		StopFailCharacter: "--",
	})
	if err != nil {
		// no spinner, probe silently
		if !client.Connected(energyPV) {
			log.Warn().Str("pv", energyPV).Msg("energy pv not connected")
		}
		return
	}
	spinner.Start()
	if client.Connected(energyPV) {
		spinner.Stop()
	} else {
		spinner.StopFail()
		log.Warn().Str("pv", energyPV).Msg("energy pv not connected; readings will be null until the gateway answers")
	}
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var client ca.Client
	if c.Mock {
		sim := ca.NewSim()
		seedSim(sim, c)
		client = sim
		log.Info().Msg("mock mode: simulated channel access")
	} else {
		client = ca.NewGateway(c.Gateway, c.RateLimit)
		energy := c.EnergyPV
		if energy == "" {
			energy = mint.DefaultEnergyPV
		}
		probeGateway(client, energy, log)
	}

	if err := os.MkdirAll(c.ArchiveDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("could not create archive dir")
	}

	var index *runlog.Index
	if c.IndexPath != "" {
		index, err = runlog.OpenIndex(c.IndexPath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not open run catalog")
		}
		defer index.Close()
	}

	presets := map[string][]mint.Preset{}
	if c.PresetsFile != "" {
		presets, err = LoadPresets(c.PresetsFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", c.PresetsFile).Msg("could not load presets")
		}
	}

	cfg := mint.Config{
		EnergyPV:  c.EnergyPV,
		ChargePV:  c.ChargePV,
		CurrentPV: c.CurrentPV,
		LossPVs:   c.LossPVs,
		QuickAdd:  c.QuickAdd,
		Presets:   presets,
		SavePath:  c.ArchiveDir,
		Index:     index,
		Logger:    &log,
	}
	if c.Mock {
		cfg.Saver = runlog.Sim{}
	}
	machine := mint.New(client, cfg)

	router := BuildRouter(c, machine)
	log.Info().Str("addr", c.Addr).Msg("now listening for requests")
	if err := http.ListenAndServe(c.Addr, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		fmt.Fprintln(os.Stderr, "unknown command")
		os.Exit(1)
	}
}
