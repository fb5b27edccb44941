package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/thatsimonsguy/physense-bridge/db"
	"github.com/thatsimonsguy/physense-bridge/internal/codec"
	"github.com/thatsimonsguy/physense-bridge/internal/config"
	"github.com/thatsimonsguy/physense-bridge/system/startup"
)

func main() {
	DebugCLI()
}

// DebugCLI plays the peer side of the bridge for manual testing.
func DebugCLI() {
	var dbPath, command, device, value, host, binary string
	var receivePort, sendPort, limit int
	flag.StringVar(&dbPath, "db", "data/journal.db", "Path to the SQLite event journal")
	flag.StringVar(&command, "cmd", "", "Command to run: send, listen, history, install-service")
	flag.StringVar(&device, "device", "", "Device token for send/history (e.g. rled, buzz)")
	flag.StringVar(&value, "value", "1", "Value for send (e.g. on, off)")
	flag.StringVar(&host, "host", config.DefaultHost, "Simulator host")
	flag.IntVar(&receivePort, "receive-port", config.DefaultReceivePort, "Simulator receive port (send target)")
	flag.IntVar(&sendPort, "send-port", config.DefaultSendPort, "Simulator send port (listen here)")
	flag.IntVar(&limit, "limit", 20, "Number of journal rows for history")
	flag.StringVar(&binary, "binary", "/usr/local/bin/physense-sim", "Bridge binary for install-service")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of physense-debug:")
		fmt.Println("  -cmd string\tCommand to run: send, listen, history, install-service")
		fmt.Println("  -device string\tDevice token for send/history")
		fmt.Println("  -value string\tValue for send (default '1')")
		fmt.Println("  -host string\tSimulator host (default '127.0.0.1')")
		fmt.Println("  -receive-port int\tSimulator receive port (default 6666)")
		fmt.Println("  -send-port int\tSimulator send port (default 6665)")
		fmt.Println("  -db string\tPath to the SQLite event journal (default 'data/journal.db')")
		fmt.Println("  -limit int\tNumber of journal rows for history (default 20)")
		fmt.Println("  -binary string\tBridge binary for install-service")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "send":
		if device == "" {
			fmt.Println("Error: device is required")
			os.Exit(1)
		}
		err = send(net.JoinHostPort(host, strconv.Itoa(receivePort)), device, value)
	case "listen":
		err = listen(net.JoinHostPort(host, strconv.Itoa(sendPort)))
	case "history":
		err = db.PrintHistoryCLI(os.Stdout, dbPath, device, limit)
	case "install-service":
		// bridge flags follow "--", e.g. -cmd install-service -- -receive-port 7000
		var cfg config.Config
		if cfg, err = config.Parse(flag.Args()); err == nil {
			err = startup.InstallService(cfg, binary)
		}
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func send(addr, device, value string) error {
	payload, err := codec.Encode(device, value)
	if err != nil {
		return err
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

// listen binds the port the simulator sends to and prints each event until interrupted.
func listen(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		conn.Close()
	}()

	fmt.Printf("Listening for simulator events on %s\n", addr)
	buf := make([]byte, codec.MaxPayload)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		cmd, err := codec.Decode(buf[:n])
		if err != nil {
			fmt.Printf("%s  %-21s malformed: %v\n", time.Now().Format(time.TimeOnly), from, err)
			continue
		}
		fmt.Printf("%s  %-21s %-10s %s\n", time.Now().Format(time.TimeOnly), from, cmd.Device(), cmd.Value())
	}
}
