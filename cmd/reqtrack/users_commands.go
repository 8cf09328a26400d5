package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"reqtrack/internal/config"
	"reqtrack/internal/requests"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage known users and library credentials",
	}
	cmd.AddCommand(newUsersListCommand(ctx))
	cmd.AddCommand(newUsersLinkCommand(ctx))
	return cmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users who have used reqtrack",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *requests.Store) error {
				users, err := store.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					if users == nil {
						users = []*requests.User{}
					}
					return writeJSON(cmd, users)
				}
				out := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintln(out, "No users recorded")
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, user := range users {
					grantedBy := user.GrantedBy
					if grantedBy == "" {
						grantedBy = "-"
					}
					rows = append(rows, []string{
						user.UserID,
						user.Username,
						string(user.Role),
						yesNo(user.HasLibraryToken()),
						grantedBy,
						formatTimestamp(user.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"User ID", "Username", "Role", "Token", "Granted By", "Updated"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newUsersLinkCommand(ctx *commandContext) *cobra.Command {
	var (
		username string
		token    string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "link <user-id>",
		Short: "Record a user's Jellyfin token, optionally granting admin",
		Long: "Stores the user's Jellyfin access token. Reconciliation acts as the most\n" +
			"recently updated admin holding a token.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(args[0])
			return ctx.withStore(func(_ *config.Config, store *requests.Store) error {
				name := strings.TrimSpace(username)
				if name == "" {
					if existing, err := store.GetUser(cmd.Context(), userID); err == nil {
						name = existing.Username
					}
				}
				user, err := store.LinkUser(cmd.Context(), requests.UserLink{
					UserID:       userID,
					Username:     name,
					LibraryToken: token,
				})
				if err != nil {
					return err
				}
				if admin && user.Role != requests.RoleAdmin {
					user, err = store.SetRole(cmd.Context(), userID, requests.RoleAdmin, "cli")
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s (%s) role=%s token=%s\n",
					user.UserID, user.Username, user.Role, yesNo(user.HasLibraryToken()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "name", "", "Display name (defaults to the user id)")
	cmd.Flags().StringVar(&token, "token", "", "Jellyfin access token")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role")
	return cmd
}
