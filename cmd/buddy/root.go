package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buddyapp/buddy-client-go/internal/buddy"
	"github.com/buddyapp/buddy-client-go/internal/config"
)

type app struct {
	cfg    *config.Config
	client *buddy.Client

	baseURL  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "buddy",
		Short:         "Command line client for the Buddy chat API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.client == nil {
				return nil
			}
			return a.client.Close()
		},
	}

	root.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "server URL (overrides BUDDY_BASE_URL)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		newPingCmd(a),
		newRegisterCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newSessionCmd(a),
		newRefreshCmd(a),
		newTokenCmd(a),
		newRoomsCmd(a),
		newMessagesCmd(a),
		newSendCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := buddy.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open client: %w", err)
	}
	if err := client.State.Load(cmd.Context()); err != nil {
		client.Close()
		return err
	}

	a.cfg = cfg
	a.client = client
	return nil
}

// readPassword takes the flag value, or the first line of stdin when it is empty.
func readPassword(flagValue string, in io.Reader) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is required (--password or stdin)")
	}
	return password, nil
}
