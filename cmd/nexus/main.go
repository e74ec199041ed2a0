package main

// @title           Nexus API
// @version         1.0
// @description     Document question answering. Nexus ingests PDF, Markdown, HTML and text documents and answers questions over them with citations, over HTTP and Slack.

// @contact.name   Custodia Labs
// @contact.url    https://github.com/custodia-labs/nexus/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// configPath points at an optional YAML file layered under NEXUS_* variables
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Answer questions over a document corpus",
	Long: `nexus ingests documents from a storage directory, indexes them for
semantic retrieval and answers questions with citations over HTTP and Slack.

Configuration is read from an optional YAML file and NEXUS_* environment
variables, for example NEXUS_SLACK_SIGNING_SECRET or NEXUS_SERVER_PORT.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("NEXUS_CONFIG_FILE"), "path to a YAML config file")
}
