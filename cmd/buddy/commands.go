package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/buddyapp/buddy-client-go/internal/chat"
	"github.com/buddyapp/buddy-client-go/internal/model"
	"github.com/buddyapp/buddy-client-go/internal/util"
)

const dateLayout = "2006-01-02 15:04"

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Health.Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Details)
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := a.client.Auth.Register(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in and store the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(password, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := a.client.Auth.Login(cmd.Context(), args[0], pw); err != nil {
				return err
			}
			printStatus(cmd, a.client.Auth.Status())
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newSessionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the logged in user and available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.client.Auth.Session(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user: %s\n", session.User.Email)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tKEY\tNAME\tDESCRIPTION")
			for _, m := range session.AvailableModels {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Provider, m.Key, m.DisplayName, m.Description)
			}
			return tw.Flush()
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.client.Layer.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token refreshed, expires %s\n", token.ExpiresAt().Format(time.RFC3339))
			return nil
		},
	}
}

// newTokenCmd inspects the stored token. The JWT is decoded without
// verification since the client does not hold the signing key.
func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Show the stored token's expiry and freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			token, ok := a.client.State.Token()
			if !ok {
				fmt.Fprintln(out, "no token stored")
				return nil
			}

			fmt.Fprintf(out, "access:    %s\n", util.MaskToken(token.AccessToken))
			fmt.Fprintf(out, "freshness: %s\n", a.client.Layer.Freshness())
			fmt.Fprintf(out, "expires:   %s (in %s)\n",
				token.ExpiresAt().Format(time.RFC3339), token.Remaining(time.Now()))

			claims := &jwt.RegisteredClaims{}
			if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, claims); err != nil {
				fmt.Fprintln(out, "access token is not a JWT")
				return nil
			}
			fmt.Fprintf(out, "subject:   %s\n", claims.Subject)
			if claims.ExpiresAt != nil && claims.ExpiresAt.Unix() != token.ExpiryTimestamp {
				fmt.Fprintf(out, "warning:   JWT exp %s differs from stored expiry\n", claims.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newRoomsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List chat rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := a.client.Chat.ListChatRooms(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED")
			for _, room := range rooms {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", room.ID, room.Title, room.MessagesCount, room.UpdatedAt.Local().Format(dateLayout))
			}
			return tw.Flush()
		},
	}
}

func newMessagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "messages <room-id>",
		Short: "Show the messages of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid room id: %w", err)
			}
			messages, err := a.client.Chat.ListChatMessages(cmd.Context(), roomID)
			if err != nil {
				return err
			}
			for _, msg := range messages {
				printMessage(cmd, msg)
			}
			return nil
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	var (
		room     string
		provider string
		key      string
	)
	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send a message, starting a new room unless --room is given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := chat.SendMessageInput{
				Provider: provider,
				Key:      key,
				Text:     strings.Join(args, " "),
			}
			if room != "" {
				id, err := uuid.Parse(room)
				if err != nil {
					return fmt.Errorf("invalid room id: %w", err)
				}
				in.RoomID = &id
			}

			if in.Provider == "" {
				session, err := a.client.Auth.Session(cmd.Context())
				if err != nil {
					return err
				}
				llm, ok := session.FindModel(key)
				if !ok {
					return fmt.Errorf("model %q is not available", key)
				}
				in.Provider = llm.Provider
			}

			outcome, err := a.client.Chat.SendMessage(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "room %s (%s)\n", outcome.Room.ID, outcome.Room.Title)
			printMessage(cmd, outcome.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "existing room id")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (looked up from the session when empty)")
	cmd.Flags().StringVar(&key, "model", "gpt-4o-mini", "LLM model key")
	return cmd
}

func printStatus(cmd *cobra.Command, status model.Status) {
	if status.IsLoggedIn() {
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", status.Session.User.Email)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", status.Phase)
}

func printMessage(cmd *cobra.Command, msg model.ChatMessage) {
	who := "you"
	if !msg.IsFromUser() {
		who = msg.LLMKey
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", msg.Date.Local().Format(dateLayout), who, msg.Content)
}
