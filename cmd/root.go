/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mikesmitty/gesture-predictor/pkg/predictor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gesture-predictor",
	Short: "Classify motion gestures in real time",
	Long: `gesture-predictor samples rotation rate and user acceleration at a fixed
rate, slides overlapping windows over the stream and feeds each completed
window to a recurrent classifier, carrying its hidden state from one window
to the next. Results are logged and optionally published over MQTT and a
websocket feed.`,
	Run: predictor.Root(),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gesture-predictor.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Float64("sample-rate", 25, "motion samples per second")
	rootCmd.PersistentFlags().Int("window-size", 20, "samples per classifier window")
	rootCmd.PersistentFlags().Int("window-offset", 5, "samples between the starts of overlapping windows")
	rootCmd.PersistentFlags().String("source", "synthetic", "motion source: synthetic, serial or replay")
	rootCmd.PersistentFlags().String("serial-port", "", "serial device of the imu")
	rootCmd.PersistentFlags().Int("serial-baud", 115200, "serial baud rate")
	rootCmd.PersistentFlags().String("replay-file", "", "csv capture to replay")
	rootCmd.PersistentFlags().String("model", "", "lstm weights file (yaml); empty uses an untrained demo model")
	rootCmd.PersistentFlags().StringSlice("labels", []string{"idle", "shake", "circle", "swipe"}, "demo model labels")
	rootCmd.PersistentFlags().Int("hidden-size", 16, "demo model hidden size")
	rootCmd.PersistentFlags().Uint64("model-seed", 1, "demo model seed")
	rootCmd.PersistentFlags().Bool("skip-failed-windows", false, "skip windows the classifier fails on instead of exiting")
	rootCmd.PersistentFlags().Int("result-queue", 8, "results buffered for presentation before they are dropped")
	rootCmd.PersistentFlags().Int("sample-queue", 0, "readings buffered while a window is classified (0 means one window)")
	rootCmd.PersistentFlags().String("mqtt-broker", "", "mqtt broker url")
	rootCmd.PersistentFlags().Int("mqtt-sample-interval", 1, "publish every nth result over mqtt")
	rootCmd.PersistentFlags().String("ws-addr", "", "listen address for the websocket feed and metrics")
	rootCmd.PersistentFlags().Duration("watchdog-timeout", 2*time.Second, "warn when no valid motion sample arrives within this interval")
	rootCmd.PersistentFlags().Int("stats-window", 100, "inferences per latency report")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".gesture-predictor" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gesture-predictor")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
