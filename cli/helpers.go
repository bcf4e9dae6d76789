package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fahmaliyi/kapa/vault"
	"golang.org/x/term"
)

var (
	errDataFileNotFound = errors.New("data file not found, run kapa to create one")
	errDataFileExists   = errors.New("data file already exists")
	errPasswordMismatch = vault.ErrWrongPassword
	errConfirmation     = errors.New("password confirmation incorrect")
	errEmptyPassword    = errors.New("master password must not be empty")
	errEntryNotFound    = errors.New("entry not found")
)

// readLine reads one line of input without its line terminator. The last
// line of a stream may end without a newline.
func (a *app) readLine(prompt string) (string, error) {
	if prompt != "" {
		fmt.Fprint(a.errOut, prompt)
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword prompts on stderr and reads a password without echo when
// stdin is a terminal. Piped input is read line by line.
func (a *app) readPassword(prompt string) ([]byte, error) {
	if f, ok := a.rawIn.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.errOut, prompt)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		return pw, err
	}
	line, err := a.readLine(prompt)
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// readNewPassword asks for a password twice and fails if the answers differ.
func (a *app) readNewPassword(prompt string, allowEmpty bool) ([]byte, error) {
	pw, err := a.readPassword(prompt)
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 && !allowEmpty {
		return nil, errEmptyPassword
	}
	confirm, err := a.readPassword("Please repeat: ")
	if err != nil {
		vault.Zero(pw)
		return nil, err
	}
	defer vault.Zero(confirm)
	if string(pw) != string(confirm) {
		vault.Zero(pw)
		return nil, errConfirmation
	}
	return pw, nil
}

func (a *app) startSpinner(message string) (*spinner.Spinner, func()) {
	a.log.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(a.errOut))
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		a.log.Debugf("Failed to set spinner color: %v", err)
	}

	if !a.verbose && !a.debug {
		s.Start()
	} else {
		a.log.Infof("%s", message)
	}
	return s, s.Stop
}

// loadContainer decodes the data file. It does not need the password.
func (a *app) loadContainer() (*vault.Container, []byte, error) {
	if !a.store.Exists() {
		return nil, nil, errDataFileNotFound
	}
	raw, err := a.store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read data file: %w", err)
	}
	c, err := vault.Load(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode data file: %w", err)
	}
	a.log.Debugf("Loaded %s with %d entries", a.dataFile, c.Len())
	return c, raw, nil
}

// unlock loads the data file and checks the master password against the
// header verifier before anything else touches the container. The caller
// closes the returned session.
func (a *app) unlock() (*vault.Session, error) {
	c, _, err := a.loadContainer()
	if err != nil {
		return nil, err
	}

	pw, err := a.readPassword("Enter your master password: ")
	if err != nil {
		return nil, err
	}
	defer vault.Zero(pw)

	_, stop := a.startSpinner("Checking password...")
	s, err := c.Unlock(pw)
	stop()
	if err != nil {
		return nil, err
	}
	a.log.Debugf("Master password verified")
	return s, nil
}

func (a *app) save(c *vault.Container) error {
	b, err := c.Bytes()
	if err != nil {
		return err
	}
	if err := a.store.Save(b); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	a.log.Debugf("Saved %d bytes to %s", len(b), a.dataFile)
	return nil
}

// copySecret writes secret to the clipboard. The returned function clears
// it again, unless something else was copied in the meantime.
func (a *app) copySecret(secret string) (func(), error) {
	if err := a.clipboardWrite(secret); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return func() {
		if current, err := a.clipboardRead(); err == nil && current != secret {
			return
		}
		if err := a.clipboardWrite(""); err != nil {
			a.log.Warnf("Failed to clear clipboard: %v", err)
		}
	}, nil
}
