package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/fahmaliyi/kapa/vault"
	"github.com/spf13/cobra"
)

func (a *app) newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME",
		Short: "Add a new entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			a.log.Infof("Adding entry %q", name)

			s, err := a.unlock()
			if err != nil {
				return err
			}
			defer s.Close()

			names, err := s.List()
			if err != nil {
				return a.log.ErrorfAndReturn("failed to read index: %w", err)
			}
			if slices.Contains(names, name) {
				return fmt.Errorf("%w: %q, remove it first", vault.ErrDuplicateEntry, name)
			}

			entry, err := a.promptEntry()
			if err != nil {
				return err
			}

			_, stop := a.startSpinner("Encrypting entry...")
			err = s.AddEntry(name, entry)
			stop()
			if err != nil {
				if errors.Is(err, vault.ErrDuplicateEntry) {
					return err
				}
				return a.log.ErrorfAndReturn("failed to add entry: %w", err)
			}
			if err := a.save(s.Container()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Entry %s added.\n", highlight(name))
			return nil
		},
	}
}

// promptEntry asks for every field of a new entry. The password is read
// without echo and confirmed.
func (a *app) promptEntry() (vault.OpenEntry, error) {
	var e vault.OpenEntry
	var err error

	fields := []struct {
		prompt string
		dst    *string
	}{
		{"Description: ", &e.Desc},
		{"User: ", &e.User},
		{"Email: ", &e.Email},
		{"Notes: ", &e.Notes},
	}
	for _, f := range fields {
		if *f.dst, err = a.readLine(f.prompt); err != nil {
			return vault.OpenEntry{}, err
		}
	}

	secret, err := a.readNewPassword("Password: ", true)
	if err != nil {
		return vault.OpenEntry{}, err
	}
	e.Pw = string(secret)
	vault.Zero(secret)
	return e, nil
}
