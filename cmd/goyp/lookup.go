package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/goyp/pkg/yp"
	"github.com/spf13/cobra"
)

// mapAliases are the ypcat/ypmatch nicknames.
var mapAliases = map[string]string{
	"passwd":    "passwd.byname",
	"group":     "group.byname",
	"networks":  "networks.byaddr",
	"hosts":     "hosts.byname",
	"protocols": "protocols.bynumber",
	"services":  "services.byname",
	"aliases":   "mail.aliases",
	"ethers":    "ethers.byname",
}

func resolveMap(name string, noAlias bool) string {
	if noAlias {
		return name
	}
	if full, ok := mapAliases[name]; ok {
		return full
	}
	return name
}

func newMatchCmd(a *app) *cobra.Command {
	var showKey, noAlias bool

	cmd := &cobra.Command{
		Use:   "match KEY... MAP",
		Short: "Print the values of one or more keys in a map",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapName := resolveMap(args[len(args)-1], noAlias)
			keys := args[:len(args)-1]

			c, err := a.dial(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			out := cmd.OutOrStdout()
			var failed error
			for _, key := range keys {
				value, err := c.Match(cmd.Context(), mapName, []byte(key))
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", key, err)
					failed = errors.Join(failed, err)
					continue
				}
				printEntry(out, showKey, []byte(key), value)
			}
			return failed
		},
	}

	cmd.Flags().BoolVarP(&showKey, "key", "k", false, "print the key before the value")
	cmd.Flags().BoolVarP(&noAlias, "no-alias", "t", false, "do not translate map nicknames")
	return cmd
}

func newCatCmd(a *app) *cobra.Command {
	var showKey, noAlias bool

	cmd := &cobra.Command{
		Use:   "cat MAP",
		Short: "Print every value in a map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapName := resolveMap(args[0], noAlias)

			c, err := a.dial(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			out := cmd.OutOrStdout()
			for entry, err := range c.All(cmd.Context(), mapName) {
				if err != nil {
					return err
				}
				printEntry(out, showKey, entry.Key, entry.Value)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showKey, "key", "k", false, "print the key before the value")
	cmd.Flags().BoolVarP(&noAlias, "no-alias", "t", false, "do not translate map nicknames")
	return cmd
}

func newWhichCmd(a *app) *cobra.Command {
	var master string

	cmd := &cobra.Command{
		Use:   "which",
		Short: "Print the server bound for the domain, or a map's master",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.dial(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			out := cmd.OutOrStdout()
			if master == "" {
				fmt.Fprintln(out, c.Endpoint().Addr())
				return nil
			}

			name, err := c.Master(cmd.Context(), resolveMap(master, false))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&master, "master", "m", "", "print the master server of this map")
	return cmd
}

func newMapsCmd(a *app) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "maps",
		Short: "List the maps served for the domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.dial(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			names, err := c.Maps(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				if !long {
					fmt.Fprintln(out, name)
					continue
				}
				master, err := c.Master(cmd.Context(), name)
				if err != nil {
					return err
				}
				order, err := c.Order(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s %d\n", name, master, order)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "also print each map's master and order number")
	return cmd
}

// printEntry writes one map entry. Keys and values may contain NUL bytes;
// they are written as they are.
func printEntry(w io.Writer, showKey bool, key, value []byte) {
	var b strings.Builder
	if showKey {
		b.Write(key)
		b.WriteByte(' ')
	}
	b.Write(value)
	b.WriteByte('\n')
	_, _ = io.WriteString(w, b.String())
}

// exitCode maps a lookup failure to the process status the yp tools use.
func exitCode(err error) int {
	switch yp.CodeOf(err) {
	case yp.Success:
		return 0
	case yp.NoMatch, yp.NoKey:
		return 1
	default:
		return 2
	}
}
