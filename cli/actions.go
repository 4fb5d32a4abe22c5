package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/tinywire/components/bus"
	"go.viam.com/tinywire/config"
	"go.viam.com/tinywire/logging"
	"go.viam.com/tinywire/twi"
)

// Addresses outside this range are reserved and never probed.
const (
	firstScanAddress = 0x08
	lastScanAddress  = 0x77
)

// withMaster opens the selected bus, runs fn and releases the bus again.
func withMaster(c *cli.Context, fn func(ctx context.Context, master *twi.Master) error) error {
	conf, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(logger.Sync)
	busConf, err := conf.BusByName(c.String(flagBus))
	if err != nil {
		return err
	}

	ctx := cliContext(c)
	opened, err := openBus(ctx, c, busConf, logger)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(opened.closer.Close)
	if err := fn(ctx, opened.master); err != nil {
		return err
	}
	return opened.printStats(c.App.Writer)
}

func cliContext(c *cli.Context) context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

func loadConfig(c *cli.Context) (*config.Config, logging.Logger, error) {
	if c.String(flagConfig) == "" {
		return nil, nil, errors.Errorf("a config file is required, pass --%s", flagConfig)
	}
	conf, err := config.Read(c.String(flagConfig))
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(c, conf)
	if err != nil {
		return nil, nil, err
	}
	return conf, logger, nil
}

func newLogger(c *cli.Context, conf *config.Config) (logging.Logger, error) {
	level := logging.WARN
	if conf.LogLevel != "" {
		parsed, err := logging.LevelFromString(conf.LogLevel)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	return logging.NewWriterLogger("tinywire", c.App.ErrWriter, level), nil
}

type openedBus struct {
	name   string
	master *twi.Master
	closer io.Closer
	stats  *prometheus.Registry
}

func openBus(ctx context.Context, c *cli.Context, busConf *config.BusConfig, logger logging.Logger) (*openedBus, error) {
	master, closer, err := bus.NewMaster(ctx, busConf, logger)
	if err != nil {
		return nil, err
	}
	opened := &openedBus{name: busConf.Name, master: master, closer: closer}
	if c.Bool(flagStats) {
		opened.stats = prometheus.NewRegistry()
		if err := opened.stats.Register(bus.NewCollector(busConf.Name, master)); err != nil {
			return nil, multierr.Combine(err, closer.Close())
		}
	}
	return opened, nil
}

// printStats writes the counters gathered for the bus, if they were asked for.
func (o *openedBus) printStats(w io.Writer) error {
	if o.stats == nil {
		return nil
	}
	families, err := o.stats.Gather()
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Counter", "Bus", "Value"})
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			t.AppendRow(table.Row{family.GetName(), o.name, metric.GetCounter().GetValue()})
		}
	}
	printf(w, "%s", t.Render())
	return nil
}

// ScanAction probes every address and prints an i2cdetect-style grid.
func ScanAction(c *cli.Context) error {
	if c.Bool(flagAll) {
		return scanAll(c)
	}
	return withMaster(c, func(ctx context.Context, master *twi.Master) error {
		found, err := scanBus(ctx, master)
		if err != nil {
			return err
		}
		printScan(c.App.Writer, found)
		return nil
	})
}

// scanAll scans every configured bus concurrently and prints the results in config order.
func scanAll(c *cli.Context) error {
	conf, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(logger.Sync)

	opened := make([]*openedBus, len(conf.Buses))
	found := make([][]byte, len(conf.Buses))
	group, ctx := errgroup.WithContext(cliContext(c))
	for i := range conf.Buses {
		i := i
		group.Go(func() error {
			o, err := openBus(ctx, c, &conf.Buses[i], logger)
			if err != nil {
				return errors.Wrapf(err, "bus %q", conf.Buses[i].Name)
			}
			defer utils.UncheckedErrorFunc(o.closer.Close)
			opened[i] = o
			found[i], err = scanBus(ctx, o.master)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, o := range opened {
		printf(c.App.Writer, "bus %s:", o.name)
		printScan(c.App.Writer, found[i])
		if err := o.printStats(c.App.Writer); err != nil {
			return err
		}
	}
	return nil
}

func scanBus(ctx context.Context, master *twi.Master) ([]byte, error) {
	var found []byte
	for addr := byte(firstScanAddress); addr <= lastScanAddress; addr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := master.Probe(ctx, addr); err == nil {
			found = append(found, addr)
		}
	}
	return found, nil
}

func printScan(w io.Writer, found []byte) {
	printf(w, "%s", scanTable(found))
	if len(found) == 0 {
		warningf(w, "no device answered; check the wiring and the pull-up resistors")
		return
	}
	printf(w, "%d devices found", len(found))
}

func scanTable(found []byte) string {
	present := map[byte]bool{}
	for _, addr := range found {
		present[addr] = true
	}

	t := table.NewWriter()
	header := table.Row{""}
	for col := 0; col < 16; col++ {
		header = append(header, fmt.Sprintf("%x", col))
	}
	t.AppendHeader(header)
	for rowStart := 0; rowStart <= twi.MaxAddress; rowStart += 16 {
		row := table.Row{fmt.Sprintf("%02x:", rowStart)}
		for col := 0; col < 16; col++ {
			addr := byte(rowStart + col)
			switch {
			case addr < firstScanAddress || addr > lastScanAddress:
				row = append(row, "")
			case present[addr]:
				row = append(row, fmt.Sprintf("%02x", addr))
			default:
				row = append(row, "--")
			}
		}
		t.AppendRow(row)
	}
	return t.Render()
}

// WriteAction stages the given bytes and sends them in one transaction.
func WriteAction(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return errors.New("an address is required")
	}
	addr, err := parseAddress(c.Args().First())
	if err != nil {
		return err
	}
	data := make([]byte, 0, c.Args().Len()-1)
	for _, arg := range c.Args().Tail() {
		b, err := parseByte(arg)
		if err != nil {
			return err
		}
		data = append(data, b)
	}

	return withMaster(c, func(ctx context.Context, master *twi.Master) error {
		if len(data) > master.Capacity()-1 {
			return errors.Errorf("%d bytes do not fit, the bus buffer holds %d", len(data), master.Capacity()-1)
		}
		if err := master.BeginTransmission(addr); err != nil {
			return err
		}
		for _, b := range data {
			if err := master.Send(b); err != nil {
				return err
			}
		}
		if err := master.EndTransmission(ctx); err != nil {
			return withStatus(err)
		}
		printf(c.App.Writer, "wrote %d bytes to 0x%02x", len(data), addr)
		return nil
	})
}

// ReadAction reads bytes from a device, optionally selecting a register first.
func ReadAction(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("an address and a byte count are required")
	}
	addr, err := parseAddress(c.Args().Get(0))
	if err != nil {
		return err
	}
	count, err := strconv.Atoi(c.Args().Get(1))
	if err != nil || count < 1 {
		return errors.Errorf("invalid byte count %q", c.Args().Get(1))
	}
	var reg *byte
	if c.IsSet(flagRegister) {
		r, err := parseByte(c.String(flagRegister))
		if err != nil {
			return err
		}
		reg = &r
	}

	return withMaster(c, func(ctx context.Context, master *twi.Master) error {
		var data []byte
		if reg != nil {
			data, err = master.ReadRegister(ctx, addr, *reg, count)
			if err != nil {
				return withStatus(err)
			}
		} else {
			if err := master.RequestFrom(ctx, addr, count); err != nil {
				return withStatus(err)
			}
			for master.Available() > 0 {
				b, err := master.Receive()
				if err != nil {
					return err
				}
				data = append(data, b)
			}
		}
		printf(c.App.Writer, "%s", formatBytes(data))
		return nil
	})
}

func withStatus(err error) error {
	return errors.Wrapf(err, "status 0x%02x", twi.Code(err))
}

func parseAddress(s string) (byte, error) {
	addr, err := strconv.ParseUint(s, 0, 8)
	if err != nil || addr > twi.MaxAddress {
		return 0, errors.Errorf("invalid 7-bit address %q", s)
	}
	return byte(addr), nil
}

func parseByte(s string) (byte, error) {
	b, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, errors.Errorf("invalid byte %q", s)
	}
	return byte(b), nil
}

func formatBytes(data []byte) string {
	return strings.Join(lo.Map(data, func(b byte, _ int) string {
		return fmt.Sprintf("0x%02x", b)
	}), " ")
}

// SchemaAction prints the JSON schema of the config file.
func SchemaAction(c *cli.Context) error {
	schema, err := config.Schema()
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", schema)
	return nil
}
