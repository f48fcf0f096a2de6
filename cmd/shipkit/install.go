package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var componentsCmd = &cobra.Command{
	Use:   "components",
	Short: "List installable template components",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		components, err := client.ListComponents(ctx, token)
		if err != nil {
			return err
		}
		for _, c := range components {
			fmt.Printf("%s\t%s\n", c.Name, c.Description)
		}
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install <component>",
	Short: "Install a template component into a repository",
	Long: `Install a template component into a repository via a pull request.

Pass --dry-run to preview the plan without opening a pull request.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		component := args[0]
		owner, _ := cmd.Flags().GetString("owner")
		repo, _ := cmd.Flags().GetString("repo")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if strings.TrimSpace(owner) == "" {
			return errors.New("--owner is required")
		}
		if strings.TrimSpace(repo) == "" {
			return errors.New("--repo is required")
		}

		client, token, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
		defer cancel()

		if dryRun {
			plan, err := client.PlanInstall(ctx, token, component, owner, repo)
			if err != nil {
				return err
			}
			fmt.Printf("target %s/%s (%s layout, base %s)\n", plan.Owner, plan.Repo, plan.Layout, plan.BaseBranch)
			for _, action := range plan.Actions {
				fmt.Printf("  %-6s %s\n", action.Kind, action.Path)
			}
			return nil
		}

		pull, opened, err := client.ApplyInstall(ctx, token, component, owner, repo)
		if err != nil {
			return err
		}
		if !opened {
			fmt.Println("component already installed, nothing to do")
			return nil
		}
		fmt.Printf("opened pull request #%d: %s\n", pull.Number, pull.HTMLURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(componentsCmd)
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().String("owner", "", "Repository owner")
	installCmd.Flags().String("repo", "", "Repository name")
	installCmd.Flags().Bool("dry-run", false, "Preview the plan without opening a pull request")
}
