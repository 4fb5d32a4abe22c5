// Package cli contains the tinywire command line: bus scans and one-off reads and writes.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

// Flags.
const (
	flagConfig   = "config"
	flagBus      = "bus"
	flagDebug    = "debug"
	flagStats    = "stats"
	flagRegister = "register"
	flagAll      = "all"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "tinywire",
		Usage:           "talk to I2C devices through a tinywire bus",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load bus configuration from `FILE`",
				EnvVars: []string{"TINYWIRE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  flagBus,
				Usage: "name of the configured bus to use, may be omitted when only one is configured",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  flagStats,
				Usage: "print transfer counters after the command",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "scan",
				Usage: "probe every non-reserved address and show which ones answer",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagAll,
						Usage: "scan every configured bus at once",
					},
				},
				Action: ScanAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the config file",
				Action: SchemaAction,
			},
			{
				Name:      "write",
				Usage:     "write bytes to a device in one transaction",
				ArgsUsage: "<address> <byte>...",
				Action:    WriteAction,
			},
			{
				Name:      "read",
				Usage:     "read bytes from a device",
				ArgsUsage: "<address> <count>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagRegister,
						Usage: "register to select with a write before reading",
					},
				},
				Action: ReadAction,
			},
		},
	}
}
