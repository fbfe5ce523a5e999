package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hoppxi/ddclight/config"
	"github.com/hoppxi/ddclight/internal/manager"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write ddclight.yaml",
	Run: func(cmd *cobra.Command, args []string) {
		reader := bufio.NewReader(os.Stdin)
		path := manager.Config.Path()

		if _, err := os.Stat(path); !os.IsNotExist(err) {
			fmt.Printf("Warning: config already exists at %s\n", path)
			if !confirm(reader, "Overwrite it?") {
				return
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fail(err)
		}

		var data []byte
		if defaults, _ := cmd.Flags().GetBool("defaults"); defaults {
			data = config.Sample()
		} else {
			var err error
			data, err = yaml.Marshal(promptConfig(reader))
			if err != nil {
				fail(err)
			}
		}

		if err := os.WriteFile(path, data, 0o644); err != nil {
			fail(err)
		}
		fmt.Printf("Config written to %s\n", path)
	},
}

func init() {
	setupCmd.Flags().Bool("defaults", false, "Write the commented default config without prompting")
}

func promptConfig(reader *bufio.Reader) config.File {
	var conf config.File
	conf.Log.Level = prompt(reader, "Log level (debug, info, warn, error)", "info")
	conf.Log.Format = prompt(reader, "Log format (text, json)", "text")

	conf.DDC.Path = prompt(reader, "ddcutil binary (empty = from PATH)", "")
	conf.DDC.SleepMultiplier = promptFloat(reader, "ddcutil sleep multiplier", 1.0)

	conf.PollInterval = promptDuration(reader, "Poll interval (0 disables)", 10*time.Second)
	conf.RedetectInterval = 8 * time.Second
	conf.Debounce = promptDuration(reader, "Debounce delay for push", 240*time.Millisecond)

	conf.Eww.Enabled = confirm(reader, "Publish brightness to eww?")
	conf.Eww.Binary = "eww"
	conf.Eww.Variable = "ddc_brightness"
	if conf.Eww.Enabled {
		conf.Eww.Variable = prompt(reader, "eww variable", conf.Eww.Variable)
	}

	conf.DBus.Enabled = !confirm(reader, "Disable the D-Bus interface?")
	conf.Hotplug.Enabled = true
	return conf
}

func prompt(r *bufio.Reader, label, defaultValue string) string {
	fmt.Printf("%s [%s]: ", label, defaultValue)
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func promptDuration(r *bufio.Reader, label string, defaultValue time.Duration) time.Duration {
	for {
		v := prompt(r, label, defaultValue.String())
		d, err := time.ParseDuration(v)
		if err == nil && d >= 0 {
			return d
		}
		fmt.Println("Please enter a duration such as 250ms or 10s.")
	}
}

func promptFloat(r *bufio.Reader, label string, defaultValue float64) float64 {
	for {
		v := prompt(r, label, strconv.FormatFloat(defaultValue, 'f', -1, 64))
		f, err := strconv.ParseFloat(v, 64)
		if err == nil && f > 0 {
			return f
		}
		fmt.Println("Please enter a positive number.")
	}
}

func confirm(r *bufio.Reader, message string) bool {
	fmt.Printf("%s (y/N): ", message)
	input, _ := r.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}
