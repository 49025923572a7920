package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/nulzo/content-orchestrator/internal/cli"
)

// AppVersion is set at build time with -ldflags "-X main.AppVersion=...".
var AppVersion = "v0.0.0"

const releasesURL = "https://api.github.com/repos/nulzo/content-orchestrator/releases/latest"

type GitHubRelease struct {
	TagName string `json:"tag_name"`
}

// LatestRelease returns the newest published tag, or "" when it cannot be
// determined.
func LatestRelease(client *http.Client, url string) string {
	resp, err := client.Get(url)
	if err != nil {
		return ""
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return ""
	}
	return release.TagName
}

// Outdated reports whether latest is a newer version than current. Tags
// that do not parse are never newer.
func Outdated(current, latest string) bool {
	cur, err := version.NewVersion(current)
	if err != nil {
		return false
	}
	lat, err := version.NewVersion(latest)
	if err != nil {
		return false
	}
	return cur.LessThan(lat)
}

func CheckForUpdates() {
	latest := LatestRelease(&http.Client{Timeout: 2 * time.Second}, releasesURL)
	if !Outdated(AppVersion, latest) {
		return
	}
	fmt.Println("---------------------------------------------------------")
	fmt.Printf("%s You are running an outdated version (%s).\n", cli.Style("WARNING:", cli.Yellow), AppVersion)
	fmt.Printf("   The latest version is %s.\n", latest)
	fmt.Println("---------------------------------------------------------")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for a newer release",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", cli.Style("content-orchestrator", cli.Bold), AppVersion)
		CheckForUpdates()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
