package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/fahmaliyi/kapa/codec"
	"github.com/fahmaliyi/kapa/config"
	"github.com/fahmaliyi/kapa/vault"
	"github.com/spf13/cobra"
)

// create prompts for a new master password and writes an empty data file.
func (a *app) create(cmd *cobra.Command) error {
	if a.store.Exists() {
		return errDataFileExists
	}
	a.log.Infof("No data file at %s, creating one", a.dataFile)

	pw, err := a.readNewPassword("Enter a new master password: ", false)
	if err != nil {
		return err
	}
	defer vault.Zero(pw)

	_, stop := a.startSpinner("Creating data file...")
	c, err := vault.TryNew(pw, a.cfg.KDFParams())
	stop()
	if err != nil {
		return a.log.ErrorfAndReturn("failed to create container: %w", err)
	}
	if err := a.save(c); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Your password file was created. Run the program again to add new entries.")
	return nil
}

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List entry names",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlock()
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := s.List()
			if err != nil {
				return a.log.ErrorfAndReturn("failed to list entries: %w", err)
			}
			if len(names) == 0 {
				a.log.Infof("No entries yet, add one with kapa add NAME")
				return nil
			}

			slices.Sort(names)
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func (a *app) newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm NAME",
		Aliases: []string{"remove"},
		Short:   "Remove an entry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			s, err := a.unlock()
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := s.List()
			if err != nil {
				return a.log.ErrorfAndReturn("failed to read index: %w", err)
			}
			if !slices.Contains(names, name) {
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s not found, nothing removed.\n", highlight(name))
				return nil
			}

			if err := s.RemoveEntry(name); err != nil {
				return a.log.ErrorfAndReturn("failed to remove entry: %w", err)
			}
			if err := a.save(s.Container()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entry %s removed.\n", highlight(name))
			return nil
		},
	}
}

func (a *app) newShowCmd() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Show an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.show(cmd, args[0], reveal)
		},
	}
	cmd.Flags().BoolVarP(&reveal, "reveal", "r", false, "print the password instead of hiding it")
	return cmd
}

func (a *app) getEntry(name string) (*vault.OpenEntry, error) {
	s, err := a.unlock()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	e, err := s.GetEntry(name)
	if err != nil {
		return nil, a.log.ErrorfAndReturn("failed to decrypt entry: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %q", errEntryNotFound, name)
	}
	return e, nil
}

func (a *app) show(cmd *cobra.Command, name string, reveal bool) error {
	e, err := a.getEntry(name)
	if err != nil {
		return err
	}
	secret := "********"
	if reveal {
		secret = e.Pw
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", highlight(name))
	fmt.Fprintf(out, "  Description: %s\n", e.Desc)
	fmt.Fprintf(out, "  User:        %s\n", e.User)
	fmt.Fprintf(out, "  Email:       %s\n", e.Email)
	fmt.Fprintf(out, "  Notes:       %s\n", e.Notes)
	fmt.Fprintf(out, "  Password:    %s\n", secret)
	return nil
}

func (a *app) newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp NAME",
		Short: "Copy an entry's password to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.getEntry(args[0])
			if err != nil {
				return err
			}
			clear, err := a.copySecret(e.Pw)
			if err != nil {
				return err
			}

			timeout := time.Duration(a.cfg.ClipboardClearSeconds) * time.Second
			if timeout == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Password copied to clipboard.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password copied to clipboard. Clearing in %s...\n", timeout)
			a.sleep(timeout)
			clear()
			return nil
		},
	}
}

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [PATH]",
		Short: "Show the format version and size of a data file",
		Long:  "Show the format version, entry count and key derivation of a data file. No password is needed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.dataFile
			var raw []byte
			var err error
			if len(args) == 1 {
				path = args[0]
				raw, err = a.store.LoadFrom(path)
			} else {
				if !a.store.Exists() {
					return errDataFileNotFound
				}
				raw, err = a.store.Load()
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			c, err := vault.Load(raw)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", path, err)
			}

			kdf := "sha256 (legacy)"
			if p := c.Header.KDF; p != nil {
				kdf = fmt.Sprintf("%s t=%d m=%dKiB p=%d", p.Algo, p.Time, p.Memory, p.Threads)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:    %s\n", path)
			fmt.Fprintf(out, "Version: %s\n", codec.GetVersion(raw))
			fmt.Fprintf(out, "Entries: %d\n", c.Len())
			fmt.Fprintf(out, "KDF:     %s\n", kdf)
			return nil
		},
	}
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the program version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kapa %s\n", codec.Version)
		},
	}
}

func (a *app) newConfigCmd() *cobra.Command {
	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the default settings",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("config %s already exists, use --force to overwrite", a.configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			def, err := config.Default()
			if err != nil {
				return err
			}
			if err := config.Save(a.configPath, def); err != nil {
				return a.log.ErrorfAndReturn("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", highlight(a.configPath))
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the kapa config file",
	}
	cmd.AddCommand(initCmd)
	return cmd
}
