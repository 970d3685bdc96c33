package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/pkg/yp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newPasswdCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd [USER]",
		Short: "Change a NIS password through yppasswdd",
		Long: `Change the NIS password of USER (default $USER). The current entry is
read from passwd.byname, the new password is hashed with bcrypt and the
update is sent to the password daemon on the domain's master.

Passwords are read from the terminal without echo, or one per line from
standard input when it is not a terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := os.Getenv("USER")
			if len(args) == 1 {
				user = args[0]
			}
			if user == "" {
				return errors.New("no user given and $USER is not set")
			}

			c, err := a.dial(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			line, err := c.Match(cmd.Context(), yp.PasswdMap, []byte(user))
			if err != nil {
				return fmt.Errorf("%s: %w", user, err)
			}
			record, err := yp.ParsePasswd(string(line))
			if err != nil {
				return err
			}

			p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			fmt.Fprintf(cmd.ErrOrStderr(), "Changing NIS password for %s on %s.\n", user, c.Endpoint().Addr())

			oldPassword, err := p.read("Old password: ")
			if err != nil {
				return err
			}
			newPassword, err := p.read("New password: ")
			if err != nil {
				return err
			}
			again, err := p.read("Retype new password: ")
			if err != nil {
				return err
			}
			if newPassword != again {
				return errors.New("passwords do not match")
			}
			if newPassword == "" {
				return errors.New("new password is empty")
			}

			record.Passwd, err = yp.HashPassword(newPassword)
			if err != nil {
				return err
			}

			if err := c.UpdateCredential(cmd.Context(), oldPassword, record); err != nil {
				return err
			}
			logger.Debug("Password for %s updated", user)
			fmt.Fprintln(cmd.OutOrStdout(), "The NIS password has been changed.")
			return nil
		},
	}
	return cmd
}

// prompter reads secrets without echo from a terminal, or line by line
// from any other reader.
type prompter struct {
	fd    int
	tty   bool
	lines *bufio.Reader
	out   io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{out: out, lines: bufio.NewReader(in)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

func (p *prompter) read(prompt string) (string, error) {
	if p.tty {
		fmt.Fprint(p.out, prompt)
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := p.lines.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
