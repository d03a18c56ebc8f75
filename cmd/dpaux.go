package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/app"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/app/config"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxbus"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/auxsim"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/capture"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/edge"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/export"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/manchester"
	"github.com/Alex-the-Smart/DPAUXAnalyzer/pkg/results"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

var (
	errNoSampleRate = errors.New("sample rate unknown, use --samplerate")
	errInvalidFlag  = errors.New("invalid flag value")
)

func main() {
	exitCode := 1
	defer func() {
		os.Exit(exitCode)
	}()

	// cfg holds the application configuration
	cfg := config.NewConfig()
	cliApp := newApp(cfg)

	err := cliApp.Run(os.Args)
	if err != nil {
		debug.FatalLog.Print(err)
		exitCode = 1
		return
	}

	exitCode = 0
}

// newApp defines the command line interface, the service runs with cfg.
func newApp(cfg *config.Config) *cli.App {
	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "Decoder for the DisplayPort AUX channel",
		Version: app.VERSION,
		Description: "Decode the manchester coded AUX channel of DisplayPort to sync, start, data and stop frames" +
			"\n the line is watched on a gpio pin, read from a capture file or from a serial capture adapter." +
			"\n Decoded frames are served by a web api and published to mqtt.",
		UsageText: "dpaux [--config <file>] [--log standard|debug|trace] [command]" +
			"\n\nEXAMPLE:" +
			"\n\tstart the decoder service and use the configuration file dpaux.yaml" +
			"\n\t\tdpaux --config /opt/womat/dpaux.yaml" +
			"\n\tdecode a capture file and write a hex dump" +
			"\n\t\tdpaux decode --in capture.txt --format dump",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &cfg.Flag.ConfigFile, Value: defaultConfigFile, Usage: "load configuration from `FILE` (.yaml or .toml)"},
			&cli.StringFlag{Name: "log", Aliases: []string{"l"}, Destination: &cfg.Flag.Debug, Value: "standard", Usage: "`LEVEL` defines the log level (standard|debug|trace)"},
		},
		Before: func(ctx *cli.Context) error {
			flag, err := config.ParseDebugFlag(cfg.Flag.Debug)
			if err != nil {
				return err
			}
			debug.SetDebug(os.Stderr, flag)
			return nil
		},
		Action: func(ctx *cli.Context) error {
			return service(cfg)
		},
		Commands: []*cli.Command{
			{
				Name:   "decode",
				Usage:  "decode a capture file",
				Flags:  append(lineFlags(), decodeFlags()...),
				Action: decodeCapture,
			},
			{
				Name:   "generate",
				Usage:  "write a capture file of generated packets",
				Flags:  append(lineFlags(), generateFlags()...),
				Action: generateCapture,
			},
			{
				Name:   "ports",
				Usage:  "list the serial ports",
				Action: listPorts,
			},
		},
	}

	// we expect to have more command line flags in the future - sort them
	sort.Sort(cli.FlagsByName(cliApp.Flags))
	sort.Sort(cli.CommandsByName(cliApp.Commands))

	return cliApp
}

// service runs the decoder service until an exit signal is received.
func service(cfg *config.Config) error {
	if err := cfg.LoadConfig(); err != nil {
		return err
	}

	debug.SetDebug(cfg.Debug.File, cfg.Debug.Flag)
	defer func() {
		debug.InfoLog.Printf("closing debug file %s", cfg.Debug.FileString)
		_ = cfg.Debug.Close()
	}()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		debug.InfoLog.Printf("closing app %s", app.Version())
		_ = a.Close()
	}()

	debug.InfoLog.Printf("starting app %s", app.Version())
	if err = a.Run(); err != nil {
		return err
	}

	// capture exit signals to ensure resources are released on exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	// wait for am os.Interrupt signal (CTRL C)
	sig := <-quit
	debug.InfoLog.Printf("Got %s signal. Aborting...", sig)

	return nil
}

// lineFlags are the line settings of the decode and generate commands.
func lineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{Name: "bitrate", Aliases: []string{"b"}, Value: 1000000, Usage: "bit rate of the AUX line in `BPS`"},
		&cli.UintFlag{Name: "samplerate", Aliases: []string{"s"}, Usage: "sample rate in `HZ`, 0 uses the capture header"},
		&cli.BoolFlag{Name: "inverted", Aliases: []string{"i"}, Usage: "the line polarity is inverted"},
	}
}

func decodeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "in", Required: true, Usage: "read the capture from `FILE`"},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the export to `FILE` instead of stdout"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "export `FORMAT` (text|dump|labels)"},
		&cli.StringFlag{Name: "base", Value: "hex", Usage: "display `BASE` of data bytes (hex|dec|bin|ascii)"},
		&cli.StringFlag{Name: "tolerance", Aliases: []string{"t"}, Value: "25%", Usage: "timing `TOLERANCE` (25%|5%|0.5%)"},
		&cli.UintFlag{Name: "syncbits", Value: auxbus.DefaultSyncBits, Usage: "minimum `COUNT` of sync bits"},
	}
}

func generateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "write the capture to `FILE`"},
		&cli.StringFlag{Name: "payload", Aliases: []string{"p"}, Usage: "`HEX` bytes of every packet, empty sends a counter of four bytes"},
		&cli.IntFlag{Name: "packets", Aliases: []string{"n"}, Value: 1, Usage: "`COUNT` of packets"},
		&cli.IntFlag{Name: "preamble", Value: auxsim.DefaultPreambleBits, Usage: "`COUNT` of sync zeros per packet"},
	}
}

// decodeCapture decodes a capture file and exports the frames.
func decodeCapture(ctx *cli.Context) error {
	f, err := os.Open(ctx.String("in"))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r, err := capture.NewReader(f)
	if err != nil {
		return fmt.Errorf("capture %s: %w", ctx.String("in"), err)
	}

	bitRate, sampleRate, err := lineRates(ctx)
	if err != nil {
		return err
	}
	if sampleRate == 0 {
		sampleRate = r.SampleRate()
	}
	if sampleRate == 0 {
		return errNoSampleRate
	}

	tol, err := manchester.ParseTolerance(ctx.String("tolerance"))
	if err != nil {
		return err
	}
	base, err := export.ParseBase(ctx.String("base"))
	if err != nil {
		return err
	}

	syncBits, err := uint32Flag(ctx, "syncbits")
	if err != nil {
		return err
	}

	store := results.New(0)
	d, err := auxbus.New(auxbus.Config{
		BitRate:    bitRate,
		SampleRate: sampleRate,
		Inverted:   ctx.Bool("inverted"),
		Tolerance:  tol,
		SyncBits:   syncBits,
	}, edge.NewStream(r, r.Initial()), store)
	if err != nil {
		return err
	}
	debug.DebugLog.Printf("decoding %s at %d Hz, %v", ctx.String("in"), sampleRate, d.Timing())

	c, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err = d.Run(c); err != nil {
		return err
	}

	frames, _ := store.Frames(0)
	debug.InfoLog.Printf("%d frames, %d packets decoded", len(frames), len(store.Payloads()))

	return writeOutput(ctx.String("out"), func(w io.Writer) error {
		switch ctx.String("format") {
		case "text":
			return export.Text(w, frames, sampleRate, base)
		case "dump":
			return export.Dump(w, frames)
		case "labels":
			return export.WriteLabels(w, frames, base)
		default:
			return fmt.Errorf("invalid format %q (text|dump|labels)", ctx.String("format"))
		}
	})
}

// generateCapture writes generated packets as capture file.
func generateCapture(ctx *cli.Context) error {
	bitRate, sampleRate, err := lineRates(ctx)
	if err != nil {
		return err
	}
	if sampleRate == 0 {
		rate := manchester.MinSampleRate(bitRate) * 2
		if rate > math.MaxUint32 {
			return fmt.Errorf("%w: bit rate %d needs a sample rate above %d Hz, use --samplerate", errInvalidFlag, bitRate, uint32(math.MaxUint32))
		}
		sampleRate = uint32(rate)
	}
	sim := auxsim.Config{
		BitRate:      bitRate,
		SampleRate:   sampleRate,
		Inverted:     ctx.Bool("inverted"),
		PreambleBits: ctx.Int("preamble"),
	}
	if err = (auxbus.Config{BitRate: sim.BitRate, SampleRate: sim.SampleRate}).Validate(); err != nil {
		return err
	}

	n := ctx.Int("packets")
	if n < 1 {
		return fmt.Errorf("%w: --packets %d, at least 1", errInvalidFlag, n)
	}
	if sim.PreambleBits < 1 {
		return fmt.Errorf("%w: --preamble %d, at least 1", errInvalidFlag, sim.PreambleBits)
	}
	packets := auxsim.Counter(n, 4, 1)
	if p := ctx.String("payload"); p != "" {
		b, err := hex.DecodeString(p)
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		for i := range packets {
			packets[i] = b
		}
	}

	initial, events := auxsim.Generate(sim, packets...)
	debug.InfoLog.Printf("%d packets, %d transitions at %d Hz", n, len(events), sampleRate)

	return writeOutput(ctx.String("out"), func(w io.Writer) error {
		return capture.WriteAll(w, sampleRate, initial, events)
	})
}

// lineRates returns the --bitrate and --samplerate flags.
func lineRates(ctx *cli.Context) (bitRate, sampleRate uint32, err error) {
	if bitRate, err = uint32Flag(ctx, "bitrate"); err != nil {
		return
	}
	sampleRate, err = uint32Flag(ctx, "samplerate")
	return
}

// uint32Flag returns the uint flag name, which must fit 32 bits.
func uint32Flag(ctx *cli.Context, name string) (uint32, error) {
	v := ctx.Uint(name)
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: --%s %d, at most %d", errInvalidFlag, name, v, uint32(math.MaxUint32))
	}
	return uint32(v), nil
}

// listPorts prints the serial ports of the host.
func listPorts(*cli.Context) error {
	ports, err := capture.Ports()
	if err != nil {
		return err
	}

	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("%s\tUSB %s:%s %s %s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
		} else {
			fmt.Println(p.Name)
		}
	}
	return nil
}

// writeOutput calls write with the file name or stdout if name is empty.
func writeOutput(name string, write func(io.Writer) error) error {
	if name == "" {
		return write(os.Stdout)
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err = write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
