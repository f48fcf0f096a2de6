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

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Manage deployments",
}

var deployNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Provision a new site deployment",
	Long: `Provision a new site deployment and wait for it to finish.

The name is checked before anything is provisioned. Pass --no-wait to
return immediately after the deployment is accepted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		name, _ := cmd.Flags().GetString("name")
		noWait, _ := cmd.Flags().GetBool("no-wait")
		if strings.TrimSpace(projectID) == "" {
			return errors.New("--project is required")
		}
		if strings.TrimSpace(name) == "" {
			return errors.New("--name is required")
		}

		client, token, err := authedClient()
		if err != nil {
			return err
		}

		checkCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		check, err := client.ValidateName(checkCtx, token, name)
		cancel()
		if err != nil {
			return err
		}
		if !check.Valid {
			return fmt.Errorf("name rejected: %s", check.Reason)
		}

		initCtx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		dep, err := client.InitiateDeployment(initCtx, token, projectID, name)
		cancel()
		if err != nil {
			return err
		}
		fmt.Printf("deployment accepted: %s\n", dep.ID)
		if noWait {
			return nil
		}
		return waitForDeployment(cmd.Context(), client, token, dep.ID)
	},
}

var deployStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		deploymentID, _ := cmd.Flags().GetString("deployment")
		watch, _ := cmd.Flags().GetBool("watch")
		if strings.TrimSpace(deploymentID) == "" {
			return errors.New("--deployment is required")
		}
		client, token, err := authedClient()
		if err != nil {
			return err
		}
		if watch {
			return waitForDeployment(cmd.Context(), client, token, deploymentID)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		status, err := client.GetDeployment(ctx, token, deploymentID)
		if err != nil {
			return err
		}
		printDeployment(status)
		return nil
	},
}

var deployListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent deployments for a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")
		if strings.TrimSpace(projectID) == "" {
			return errors.New("--project is required")
		}
		client, token, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		statuses, err := client.ListDeployments(ctx, token, projectID, limit)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			d := s.Deployment
			fmt.Printf("%s\t%s\t%s\t%s\n", d.ID, d.Status, d.URL, d.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var deployCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel an in-flight deployment",
	RunE: func(cmd *cobra.Command, args []string) error {
		deploymentID, _ := cmd.Flags().GetString("deployment")
		if strings.TrimSpace(deploymentID) == "" {
			return errors.New("--deployment is required")
		}
		client, token, err := authedClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		dep, err := client.CancelDeployment(ctx, token, deploymentID)
		if err != nil {
			return err
		}
		fmt.Printf("deployment %s is now %s\n", dep.ID, dep.Status)
		return nil
	},
}

// waitForDeployment polls until the deployment reaches a terminal status,
// honouring the poll interval the API suggests.
func waitForDeployment(ctx context.Context, client *apiclient.Client, token, deploymentID string) error {
	interval := 3 * time.Second
	for {
		pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		status, err := client.GetDeployment(pollCtx, token, deploymentID)
		cancel()
		if err != nil {
			return err
		}
		if terminalStatus(status.Deployment.Status) {
			printDeployment(status)
			if status.Deployment.Status != "completed" {
				return fmt.Errorf("deployment %s", status.Deployment.Status)
			}
			return nil
		}
		fmt.Printf("deploying... (%s)\n", status.Deployment.ID)
		if status.PollAfterSec > 0 {
			interval = time.Duration(status.PollAfterSec) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func terminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "timeout", "cancelled":
		return true
	}
	return false
}

func printDeployment(status apiclient.DeploymentStatus) {
	d := status.Deployment
	fmt.Printf("id:     %s\n", d.ID)
	fmt.Printf("status: %s\n", d.Status)
	if d.URL != "" {
		fmt.Printf("url:    %s\n", d.URL)
	}
	if d.Error != "" {
		fmt.Printf("error:  %s\n", d.Error)
	}
	if status.Stale {
		fmt.Println("warning: deployment has been running longer than expected")
	}
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.AddCommand(deployNewCmd)
	deployCmd.AddCommand(deployStatusCmd)
	deployCmd.AddCommand(deployListCmd)
	deployCmd.AddCommand(deployCancelCmd)

	deployNewCmd.Flags().String("project", "", "Project identifier")
	deployNewCmd.Flags().String("name", "", "Deployment name")
	deployNewCmd.Flags().Bool("no-wait", false, "Do not wait for the deployment to finish")
	deployStatusCmd.Flags().String("deployment", "", "Deployment identifier")
	deployStatusCmd.Flags().Bool("watch", false, "Poll until the deployment finishes")
	deployListCmd.Flags().String("project", "", "Project identifier")
	deployListCmd.Flags().Int("limit", 5, "Maximum number of deployments")
	deployCancelCmd.Flags().String("deployment", "", "Deployment identifier")
}
