// Command lorachat is a minimal line-oriented chat over the reliable LoRa
// transport. Each stdin line is sent as one packet; received packets and
// transfer progress are printed to stdout.
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-lora/logger"
	"github.com/arloliu/go-lora/lora"
	"github.com/arloliu/go-lora/worker"
)

var (
	cfgFile string
	port    string
	baud    int
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lorachat",
	Short: "Line-oriented chat between two E22-400T22U USB LoRa modules",
	Long: `lorachat reads lines from stdin and sends each one as a packet over
the reliable LoRa transport. Received packets are printed to stdout.
Port settings come from a YAML config file and can be overridden by flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "lorachat.yaml", "path to the YAML config file")
	rootCmd.Flags().StringVar(&port, "port", "", "serial device, e.g. /dev/ttyUSB0 (overrides config)")
	rootCmd.Flags().IntVar(&baud, "baud", 0, "baud rate (overrides config)")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != "" {
		cfg.Port = port
	}
	if baud != 0 {
		cfg.BaudRate = baud
	}
	if cfg.Port == "" {
		return fmt.Errorf("no serial port given, set --port or %q in %s", "port", cfgFile)
	}

	// transport logs go to stderr so the chat itself stays on stdout
	level := logger.InfoLevel
	if verbose {
		level = logger.DebugLevel
	}
	log := logger.NewConsole(level)

	w := worker.New()
	w.Subscribe(worker.Listener{
		PacketSent: func(ok bool) {
			if ok {
				fmt.Println("-- delivered")
			} else {
				fmt.Println("-- delivery failed")
			}
		},
		PacketReceived: func(data []byte) {
			fmt.Printf("<< %s\n", data)
		},
		SendProgress: func(sent, total int) {
			fmt.Printf("-- sending %d/%d bytes\n", sent, total)
		},
		ReceiveProgress: func(received, estimate int) {
			fmt.Printf("-- receiving %d/~%d bytes\n", received, estimate)
		},
		Error: func(msg string) {
			fmt.Fprintf(os.Stderr, "-- transport error: %s\n", msg)
		},
	})

	err = w.OpenPort(cfg.Port,
		worker.WithBaudRate(cfg.BaudRate),
		worker.WithLogger(log),
		worker.WithEngineOptions(
			lora.WithAckTimeout(time.Duration(cfg.AckTimeoutMS)*time.Millisecond),
			lora.WithMaxRetries(cfg.MaxRetries),
		),
	)
	if err != nil {
		return err
	}
	defer w.ClosePort()

	fmt.Printf("connected to %s at %d baud, type to chat\n", cfg.Port, cfg.BaudRate)

	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}

		packet := make([]byte, len(line))
		copy(packet, line)

		if err := w.SendPacket(packet); err != nil {
			fmt.Fprintf(os.Stderr, "-- send rejected: %v\n", err)
		}
	}

	return in.Err()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
