package testpulse

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kamilpajak/testpulse/internal/cluster"
	"github.com/kamilpajak/testpulse/internal/flaky"
	"github.com/kamilpajak/testpulse/internal/history"
	"github.com/kamilpajak/testpulse/internal/store"
	"github.com/kamilpajak/testpulse/internal/triage"
)

var (
	filterConfiguration string
	filterBuild         string
	filterDomain        string

	groupsThreshold float64

	flakyThreshold float64
	flakyWindow    int

	historyBuilds int

	triageToday     string
	triageYesterday string
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Group failures that likely share a root cause",
	Long: `Clusters failing records by their normalized error message and merges
near-duplicate clusters.

Examples:
  testpulse groups -r ./reports
  testpulse groups -r ./reports --build nightly-117 --threshold 0.9`,
	Args: cobra.NoArgs,
	RunE: runGroups,
}

var flakyCmd = &cobra.Command{
	Use:   "flaky",
	Short: "List tests that alternate between passing and failing",
	Args:  cobra.NoArgs,
	RunE:  runFlaky,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the feature/suite/test history of one configuration",
	Long: `Prints a tree of features, suites and tests with one column per build,
latest build first.

Examples:
  testpulse history -r ./reports --configuration "25.1|regression|linux-x64|payments"`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Compare two builds: new failures, fixed tests, still failing",
	Long: `Without --today and --yesterday the two latest builds are compared.

Examples:
  testpulse triage -r ./reports
  testpulse triage -r ./reports --today nightly-118 --yesterday nightly-117 --domain payments`,
	Args: cobra.NoArgs,
	RunE: runTriage,
}

var dimensionsCmd = &cobra.Command{
	Use:   "dimensions",
	Short: "List the known domains, features, configurations and builds",
	Args:  cobra.NoArgs,
	RunE:  runDimensions,
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&filterConfiguration, "configuration", "", "Only records of this configuration id")
	cmd.Flags().StringVar(&filterBuild, "build", "", "Only records of this build")
	cmd.Flags().StringVar(&filterDomain, "domain", "", "Only records of this domain")
}

func init() {
	addFilterFlags(groupsCmd)
	groupsCmd.Flags().Float64VarP(&groupsThreshold, "threshold", "t", 0, "Similarity threshold in [0,1] (default from config)")

	addFilterFlags(flakyCmd)
	flakyCmd.Flags().Float64VarP(&flakyThreshold, "threshold", "t", 0, "Minimum failure rate in [0,1] (default from config)")
	flakyCmd.Flags().IntVarP(&flakyWindow, "window", "w", 0, "Most recent runs considered per test (default from config)")

	historyCmd.Flags().StringVar(&filterConfiguration, "configuration", "", "Configuration id (required)")
	historyCmd.Flags().IntVarP(&historyBuilds, "builds", "n", 0, "Number of build columns (default from config)")
	_ = historyCmd.MarkFlagRequired("configuration")

	triageCmd.Flags().StringVar(&triageToday, "today", "", "Build to treat as today")
	triageCmd.Flags().StringVar(&triageYesterday, "yesterday", "", "Build to treat as yesterday")
	triageCmd.Flags().StringVar(&filterDomain, "domain", "", "Only records of this domain")
	triageCmd.MarkFlagsRequiredTogether("today", "yesterday")
}

func currentFilter() store.Filter {
	return store.Filter{Configuration: filterConfiguration, Build: filterBuild, Domain: filterDomain}
}

func runGroups(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	threshold := e.cfg.Analysis.SimilarityThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = groupsThreshold
	}
	groups := cluster.New(e.cfg.Analysis.Clustering).GroupFailures(e.store.Select(currentFilter()), threshold)

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), groups)
	}
	printGroups(cmd.OutOrStdout(), groups)
	return nil
}

func runFlaky(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	threshold, window := e.cfg.Analysis.FailureRateThreshold, e.cfg.Analysis.RecentWindow
	if cmd.Flags().Changed("threshold") {
		threshold = flakyThreshold
	}
	if cmd.Flags().Changed("window") {
		window = flakyWindow
	}
	reports := flaky.New().DetectFlaky(e.store.Select(currentFilter()), threshold, window)

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), reports)
	}
	printFlaky(cmd.OutOrStdout(), reports)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	builds := e.cfg.Analysis.HistoryBuilds
	if cmd.Flags().Changed("builds") {
		builds = historyBuilds
	}
	res := history.New(e.store).BuildHistory(filterConfiguration, builds)

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), res)
	}
	printHistory(cmd.OutOrStdout(), res)
	return nil
}

func runTriage(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	c := triage.New(e.store)
	res := c.CompareLatest(filterDomain)
	if triageToday != "" {
		res = c.Compare(triageToday, triageYesterday, filterDomain)
	}

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), res)
	}
	if res == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Not enough data to compare builds.")
		return nil
	}
	printTriage(cmd.OutOrStdout(), res)
	return nil
}

type dimensions struct {
	Records        int      `json:"records"`
	Domains        []string `json:"domains"`
	Features       []string `json:"features"`
	Configurations []string `json:"configurations"`
	Builds         []string `json:"builds"`
	Versions       []string `json:"versions"`
	NamedConfigs   []string `json:"named_configs"`
}

func runDimensions(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	d := dimensions{
		Records:        e.store.TotalCount(),
		Domains:        e.store.DomainIDs(),
		Features:       e.store.FeatureIDs(),
		Configurations: e.store.ConfigurationIDs(),
		Builds:         e.store.BuildIDs(),
		Versions:       e.store.Versions(),
		NamedConfigs:   e.store.NamedConfigs(),
	}
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), d)
	}
	printDimensions(cmd.OutOrStdout(), d)
	return nil
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
