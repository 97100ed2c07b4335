package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iyuangang/webservice-monitor/internal/cli/style"
	"github.com/iyuangang/webservice-monitor/internal/db"
	"github.com/iyuangang/webservice-monitor/internal/models"
)

var (
	configName      string
	configURL       string
	configMethod    string
	configPayload   string
	configHeaders   string
	configInterval  int
	configBatch     int
	configTimeout   int
	configThreshold float64
	configHours     string
	configInactive  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage monitor configurations",
	Long: `Create, inspect and edit the monitored endpoints. The running daemon
does not see changes until the next reload (webmon reload).`,
}

var configAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a monitor configuration",
	Example: `  webmon config add --name checkout --url https://shop.example.com/health
  webmon config add --name api-post --url https://api.example.com/ping \
      --method POST --payload '{"ping":true}' --interval 60 --batch 3 \
      --threshold 1.5 --hours "08:00-12:00,13:00-22:00"`,
	RunE: runConfigAdd,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitor configurations",
	RunE:  runConfigList,
}

var configShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show one configuration in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigShow,
}

var configUpdateCmd = &cobra.Command{
	Use:   "update <id|name>",
	Short: "Update fields of a configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigUpdate,
}

var configEnableCmd = &cobra.Command{
	Use:   "enable <id|name>",
	Short: "Activate a configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(cmd, args[0], true) },
}

var configDisableCmd = &cobra.Command{
	Use:   "disable <id|name>",
	Short: "Deactivate a configuration without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(cmd, args[0], false) },
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a configuration and its probe history",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigDelete,
}

var configImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import configurations from JSON (file or stdin)",
	Long: `Import a JSON array of configurations. Existing entries are matched by
name and updated; everything else is inserted. The whole import is one
transaction, so a bad entry rolls back all of it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigImport,
}

var configExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export configurations as JSON (file or stdout)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigExport,
}

func init() {
	addConfigFieldFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&configName, "name", "", "unique configuration name")
		cmd.Flags().StringVar(&configURL, "url", "", "URL to monitor")
		cmd.Flags().StringVar(&configMethod, "method", "GET", "HTTP method, GET or POST")
		cmd.Flags().StringVar(&configPayload, "payload", "", "request body for POST")
		cmd.Flags().StringVar(&configHeaders, "headers", "", `request headers, "Key: Value;Key2: Value2"`)
		cmd.Flags().IntVar(&configInterval, "interval", 300, "seconds between batches")
		cmd.Flags().IntVar(&configBatch, "batch", 5, "calls per batch")
		cmd.Flags().IntVar(&configTimeout, "timeout", 10, "per-call timeout in seconds")
		cmd.Flags().Float64Var(&configThreshold, "threshold", 2.0, "performance alert threshold in seconds")
		cmd.Flags().StringVar(&configHours, "hours", "", `monitoring windows, "08:00-12:00,13:00-22:00" (empty = always)`)
	}
	addConfigFieldFlags(configAddCmd)
	configAddCmd.Flags().BoolVar(&configInactive, "inactive", false, "create the configuration deactivated")
	_ = configAddCmd.MarkFlagRequired("name")
	_ = configAddCmd.MarkFlagRequired("url")
	addConfigFieldFlags(configUpdateCmd)

	configCmd.AddCommand(configAddCmd, configListCmd, configShowCmd, configUpdateCmd,
		configEnableCmd, configDisableCmd, configDeleteCmd, configImportCmd, configExportCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigAdd(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	cfg := models.MonitorConfig{
		Name:            strings.TrimSpace(configName),
		URL:             strings.TrimSpace(configURL),
		Method:          strings.ToUpper(configMethod),
		Payload:         configPayload,
		Headers:         parseHeaderFlag(configHeaders),
		IntervalSeconds: configInterval,
		CallsPerBatch:   configBatch,
		TimeoutSeconds:  configTimeout,
		AlertThreshold:  configThreshold,
		MonitoringHours: configHours,
		IsActive:        !configInactive,
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := repo.CreateConfig(cmd.Context(), &cfg); err != nil {
		return err
	}
	fmt.Printf("%s config %d (%s) created\n", style.DotHealthy, cfg.ID, cfg.Name)
	return nil
}

func runConfigList(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	configs, err := repo.ListConfigs(cmd.Context(), false)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		fmt.Println(style.DimText.Render("no configurations, add one with: webmon config add"))
		return nil
	}

	header := fmt.Sprintf("  %-2s %-5s %-20s %-40s %-9s %-6s %s", "", "ID", "NAME", "URL", "INTERVAL", "BATCH", "HOURS")
	fmt.Println(style.TableHeader.Render(header))
	for _, c := range configs {
		dot := style.DotHealthy
		if !c.IsActive {
			dot = style.DotDim
		}
		hours := c.MonitoringHours
		if hours == "" {
			hours = style.DimText.Render("always")
		}
		fmt.Printf("  %s %-5d %-20s %-40s %-9s %-6d %s\n",
			dot, c.ID, truncate(c.Name, 20), truncate(c.URL, 40), c.Interval(), c.CallsPerBatch, hours)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	cfg, err := resolveConfigArg(cmd, repo, args[0])
	if err != nil {
		return err
	}

	kv := func(k, v string) {
		fmt.Println(style.Key.Render(k) + style.Val.Render(v))
	}
	fmt.Printf("%s %s\n\n", style.Title.Render(cfg.Name), style.OnOff(cfg.IsActive))
	kv("id", strconv.FormatInt(cfg.ID, 10))
	kv("url", cfg.URL)
	kv("method", cfg.Method)
	if cfg.Payload != "" {
		kv("payload", cfg.Payload)
	}
	for k, v := range cfg.Headers {
		kv("header", k+": "+v)
	}
	kv("interval", cfg.Interval().String())
	kv("calls per batch", strconv.Itoa(cfg.CallsPerBatch))
	kv("timeout", cfg.Timeout().String())
	kv("alert threshold", fmt.Sprintf("%.2fs", cfg.AlertThreshold))
	if cfg.MonitoringHours != "" {
		kv("monitoring hours", cfg.MonitoringHours)
	} else {
		kv("monitoring hours", "always")
	}
	kv("created", cfg.CreatedAt.Local().Format(time.RFC1123))
	kv("updated", cfg.UpdatedAt.Local().Format(time.RFC1123))
	return nil
}

func runConfigUpdate(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	cfg, err := resolveConfigArg(cmd, repo, args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.Name = strings.TrimSpace(configName)
	}
	if flags.Changed("url") {
		cfg.URL = strings.TrimSpace(configURL)
	}
	if flags.Changed("method") {
		cfg.Method = strings.ToUpper(configMethod)
	}
	if flags.Changed("payload") {
		cfg.Payload = configPayload
	}
	if flags.Changed("headers") {
		cfg.Headers = parseHeaderFlag(configHeaders)
	}
	if flags.Changed("interval") {
		cfg.IntervalSeconds = configInterval
	}
	if flags.Changed("batch") {
		cfg.CallsPerBatch = configBatch
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSeconds = configTimeout
	}
	if flags.Changed("threshold") {
		cfg.AlertThreshold = configThreshold
	}
	if flags.Changed("hours") {
		cfg.MonitoringHours = configHours
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := repo.UpdateConfig(cmd.Context(), &cfg); err != nil {
		return err
	}
	fmt.Printf("%s config %d (%s) updated\n", style.DotHealthy, cfg.ID, cfg.Name)
	return nil
}

func setActive(cmd *cobra.Command, arg string, active bool) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	cfg, err := resolveConfigArg(cmd, repo, arg)
	if err != nil {
		return err
	}
	if err := repo.SetConfigActive(cmd.Context(), cfg.ID, active); err != nil {
		return err
	}
	fmt.Printf("config %d (%s) is now %s\n", cfg.ID, cfg.Name, style.OnOff(active))
	return nil
}

func runConfigDelete(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	cfg, err := resolveConfigArg(cmd, repo, args[0])
	if err != nil {
		return err
	}
	if err := repo.DeleteConfig(cmd.Context(), cfg.ID); err != nil {
		return err
	}
	fmt.Printf("config %d (%s) deleted\n", cfg.ID, cfg.Name)
	return nil
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	var configs []models.MonitorConfig
	if err := json.NewDecoder(in).Decode(&configs); err != nil {
		return fmt.Errorf("parse import: %w", err)
	}
	for i := range configs {
		configs[i].ApplyDefaults()
		if err := configs[i].Validate(); err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, configs[i].Name, err)
		}
	}

	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := repo.ImportConfigs(cmd.Context(), configs)
	if err != nil {
		return err
	}
	fmt.Printf("%s imported %d configurations\n", style.DotHealthy, n)
	return nil
}

func runConfigExport(cmd *cobra.Command, args []string) error {
	repo, closeDB, err := openRepo()
	if err != nil {
		return err
	}
	defer closeDB()

	configs, err := repo.ListConfigs(cmd.Context(), false)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(configs); err != nil {
		return err
	}
	if len(args) == 1 && args[0] != "-" {
		fmt.Printf("exported %d configurations to %s\n", len(configs), args[0])
	}
	return nil
}

// resolveConfigArg accepts a numeric id or a configuration name.
func resolveConfigArg(cmd *cobra.Command, repo *db.Repository, arg string) (models.MonitorConfig, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		cfg, err := repo.GetConfig(cmd.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			return models.MonitorConfig{}, fmt.Errorf("config %d not found", id)
		}
		return cfg, err
	}
	cfg, err := repo.GetConfigByName(cmd.Context(), arg)
	if errors.Is(err, db.ErrNotFound) {
		return models.MonitorConfig{}, fmt.Errorf("config %q not found", arg)
	}
	return cfg, err
}
