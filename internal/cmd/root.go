package cmd

import (
	"fmt"
	"os"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/karmalens/karmalens/internal/appid"
	"github.com/karmalens/karmalens/internal/config"
	"github.com/karmalens/karmalens/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	appIdentity = appid.Get()

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the application identity.
func GetAppIdentity() appid.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   appid.BinaryName,
	Short: appid.Description,
	Long: fmt.Sprintf(`%s - %s

Tracked users are stored locally (or in Turso) and collected in batches.
Use the subcommands to manage tracked users, collect snapshots and serve the API.`, appid.BinaryName, appid.Description),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so CLI commands do not emit metrics to
	// stdout. Server mode initializes telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", appid.ConfigName))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration (missing file is ignored)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in the .env file, config file and ENV variables if set.
func initConfig() {
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	if err := loadDotEnv(envFile); err != nil {
		observability.CLILogger.Warn("Failed to load env file", zap.String("path", envFile), zap.Error(err))
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		appConfigDir := gfconfig.GetAppConfigDir(appIdentity.ConfigName)
		if appConfigDir == "" {
			if verbose {
				observability.CLILogger.Warn("Could not resolve XDG config directory, falling back to home directory")
			}
			home, err := os.UserHomeDir()
			if err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Could not find home directory", err)
			}
			viper.AddConfigPath(home)
			viper.SetConfigName("." + appIdentity.ConfigName)
		} else {
			viper.AddConfigPath(appConfigDir)
			viper.SetConfigName("config")
		}

		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(appIdentity.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
		}
	} else if verbose {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		} else {
			observability.CLILogger.Warn("Error reading config file", zap.Error(err))
		}
	}

	config.SetDefaults(viper.GetViper())
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set.
func loadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
