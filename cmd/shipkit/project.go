package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/shipkit/platform/pkg/api/client"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var teamListCmd = &cobra.Command{
	Use:   "teams",
	Short: "List teams for the authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		teams, err := client.ListTeams(ctx, token)
		if err != nil {
			return err
		}
		for _, t := range teams {
			fmt.Printf("%s\t%s\n", t.ID, t.Name)
		}
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects in a team",
	RunE: func(cmd *cobra.Command, args []string) error {
		teamID, _ := cmd.Flags().GetString("team")
		if strings.TrimSpace(teamID) == "" {
			return errors.New("--team is required")
		}
		client, token, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		projects, err := client.ListProjects(ctx, token, teamID)
		if err != nil {
			return err
		}
		for _, p := range projects {
			fmt.Printf("%s\t%s\t%s\n", p.ID, p.Name, p.Slug)
		}
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		teamID, _ := cmd.Flags().GetString("team")
		name, _ := cmd.Flags().GetString("name")
		template, _ := cmd.Flags().GetString("template")
		if strings.TrimSpace(teamID) == "" {
			return errors.New("--team is required")
		}
		if strings.TrimSpace(name) == "" {
			return errors.New("--name is required")
		}

		client, token, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		project, err := client.CreateProject(ctx, token, apiclient.CreateProjectInput{
			TeamID:       teamID,
			Name:         name,
			TemplateRepo: template,
		})
		if err != nil {
			return err
		}
		fmt.Printf("project created: %s (%s)\n", project.ID, project.Slug)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(teamListCmd)
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectCreateCmd)

	projectListCmd.Flags().String("team", "", "Team identifier")
	projectCreateCmd.Flags().String("team", "", "Team identifier")
	projectCreateCmd.Flags().String("name", "", "Project name")
	projectCreateCmd.Flags().String("template", "", "Template repository override")
}
