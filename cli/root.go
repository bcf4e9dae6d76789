// Package cli implements the kapa command line.
package cli

import (
	"bufio"
	"errors"
	"io"
	"time"

	"github.com/atotto/clipboard"
	"github.com/fahmaliyi/kapa/codec"
	"github.com/fahmaliyi/kapa/config"
	"github.com/fahmaliyi/kapa/logger"
	"github.com/fahmaliyi/kapa/vault"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// app holds the state shared by every command of one invocation.
type app struct {
	verbose    bool
	debug      bool
	dataFile   string
	configPath string

	cfg   *config.Config
	log   logger.Logger
	store vault.Store

	in     *bufio.Reader
	rawIn  io.Reader
	errOut io.Writer

	clipboardWrite func(string) error
	clipboardRead  func() (string, error)
	sleep          func(time.Duration)
}

const annotationSkipConfig = "kapa/skip-config"

var highlight = color.New(color.FgYellow, color.Bold).SprintFunc()

// NewRootCmd builds the kapa command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{
		clipboardWrite: clipboard.WriteAll,
		clipboardRead:  clipboard.ReadAll,
		sleep:          time.Sleep,
	})
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kapa [NAME]",
		Short: "kapa - a small encrypted password store",
		Long: `kapa keeps named password entries in a single encrypted file.

Run kapa without arguments to create the data file, then use the
subcommands below to manage entries. kapa NAME shows a single entry.`,
		Version:       codec.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.show(cmd, args[0], false)
			}
			if a.store.Exists() {
				return cmd.Help()
			}
			return a.create(cmd)
		},
	}
	cmd.SetVersionTemplate("kapa {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.dataFile, "file", "", "path to the data file (overrides the config)")
	flags.StringVar(&a.configPath, "config", "", "path to the config file")
	flags.BoolVar(&a.verbose, "verbose", false, "enable verbose output")
	flags.BoolVarP(&a.debug, "debug", "d", false, "enable debug output")

	cmd.AddCommand(
		a.newListCmd(),
		a.newAddCmd(),
		a.newRemoveCmd(),
		a.newShowCmd(),
		a.newCopyCmd(),
		a.newBrowseCmd(),
		a.newInfoCmd(),
		a.newConfigCmd(),
		a.newVersionCmd(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	a.errOut = cmd.ErrOrStderr()
	a.log = logger.Logger{
		Verbose: a.verbose,
		Debug:   a.debug,
		Out:     a.errOut,
		Err:     a.errOut,
	}

	if a.configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		a.configPath = path
	}
	a.rawIn = cmd.InOrStdin()
	a.in = bufio.NewReader(a.rawIn)

	// config subcommands write the file, so a broken one must not stop them.
	if cmd.Annotations[annotationSkipConfig] != "" {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log.Debugf("Using config %s", a.configPath)

	if a.dataFile == "" {
		a.dataFile = cfg.DataFile
	}
	a.store = vault.NewFileStore(a.dataFile)
	a.log.Debugf("Using data file %s", a.dataFile)
	return nil
}

// Execute runs the root command and prints any error it returns.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		log := logger.Logger{Err: cmd.ErrOrStderr()}
		switch {
		case errors.Is(err, errDataFileNotFound):
			log.Errorf("Data file not found. Run kapa without arguments to create one.")
		case errors.Is(err, errPasswordMismatch):
			log.Errorf("Password does not match.")
		default:
			log.Errorf("%v", err)
		}
	}
	return err
}
