package command

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samnetworks/samcore/src/config"
	"github.com/samnetworks/samcore/src/samcore"
	vers "github.com/samnetworks/samcore/src/version"
)

var (
	conf    *config.Config
	datadir *string
	version *bool
)

func init() {
	conf = config.NewDefaultConfig()

	cobra.OnInitialize(initConfig)

	// Base datadir
	datadir = rootCmd.PersistentFlags().StringP("datadir", "d", conf.DataDir, "Working directory")

	// Hub identity and transport
	rootCmd.PersistentFlags().String("hub", conf.HubName, "Hub name, also names the local socket")
	rootCmd.PersistentFlags().String("socket-dir", conf.SocketDir, "Directory holding the named local socket")
	rootCmd.PersistentFlags().String("transport", conf.Transport, "Stream layer (unix, ws)")
	rootCmd.PersistentFlags().String("ws-listen", conf.WSAddr, "Listen IP:Port for the WebSocket stream layer")
	rootCmd.PersistentFlags().StringP("service-listen", "s", conf.ServiceAddr, "HTTP status service listen IP:Port")

	// Various
	rootCmd.PersistentFlags().String("log", conf.LogLevel, "Log level (debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().String("log-dir", conf.LogDir, "Directory for per-level log files")
	rootCmd.PersistentFlags().Bool("journal", conf.Journal, "Record routed frames in a badger journal")
	rootCmd.PersistentFlags().String("journal-db", conf.JournalDir, "Directory of the journal database")
	rootCmd.PersistentFlags().DurationP("timeout", "t", conf.DialTimeout, "Transport dial timeout")

	// Version
	version = rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version and exit")
}

func initConfig() {
	viper.AddConfigPath(*datadir)
	viper.SetConfigName("samcore")

	viper.BindPFlags(rootCmd.PersistentFlags())

	if err := viper.ReadInConfig(); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}

	if err := viper.Unmarshal(conf); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}
}

var rootCmd = &cobra.Command{
	Use:   "samcore",
	Short: "SamCore message-routing hub",
	Long:  "SamCore message-routing hub",
	Run: func(cmd *cobra.Command, args []string) {
		if *version {
			fmt.Println(vers.Version)

			return
		}

		logger := conf.Logger()

		logger.WithFields(logrus.Fields{
			"hub":            conf.HubName,
			"datadir":        conf.DataDir,
			"socket":         conf.SocketPath(),
			"transport":      conf.Transport,
			"ws-listen":      conf.WSAddr,
			"service-listen": conf.ServiceAddr,
			"journal":        conf.Journal,
			"log":            conf.LogLevel,
		}).Debug("RUN")

		engine := samcore.NewSamCore(conf)

		if err := engine.Init(); err != nil {
			logger.Error("Cannot initialize engine:", err)

			return
		}

		engine.Run()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)

		os.Exit(1)
	}
}
