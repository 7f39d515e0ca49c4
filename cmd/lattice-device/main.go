// lattice-device runs a Lattice1 hardware wallet simulator.
//
// The simulator serves the device wire protocol over direct TCP and,
// optionally, over a relay HTTP endpoint, and exposes the device
// screen to a browser UI over WebSocket.
//
// Usage:
//
//	lattice-device [options]
//
// Options:
//
//	-device-id  Device id (default: random)
//	-name       Device display name (default: "Lattice1")
//	-listen     Direct TCP listen address (default: ":8884")
//	-relay      Relay HTTP listen address (default: disabled)
//	-ui         UI WebSocket listen address (default: ":8885")
//	-locked     Start with the screen locked
//	-mdns       Advertise the device over DNS-SD
//	-v          Verbose logging
//
// Example:
//
//	lattice-device -device-id a1b2c3d4e5f6 -listen :8884 -ui :8885 -mdns
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/backkem/lattice/pkg/lattice"
)

func main() {
	deviceID := flag.String("device-id", "", "device id (default: random)")
	name := flag.String("name", "", "device display name")
	listen := flag.String("listen", lattice.DefaultListenAddr, "direct TCP listen address")
	relay := flag.String("relay", "", "relay HTTP listen address (empty disables the relay)")
	ui := flag.String("ui", lattice.DefaultUIAddr, "UI WebSocket listen address")
	locked := flag.Bool("locked", false, "start with the screen locked")
	mdns := flag.Bool("mdns", false, "advertise the device over DNS-SD")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	loggerFactory := logging.NewDefaultLoggerFactory()
	if *verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	}

	sim, err := lattice.NewSimulator(lattice.Config{
		DeviceID:        *deviceID,
		DeviceName:      *name,
		ListenAddr:      *listen,
		RelayAddr:       *relay,
		UIAddr:          *ui,
		Locked:          *locked,
		EnableDiscovery: *mdns,
		LoggerFactory:   loggerFactory,
	})
	if err != nil {
		log.Fatalf("Failed to create simulator: %v", err)
	}

	if err := sim.Start(); err != nil {
		log.Fatalf("Failed to start simulator: %v", err)
	}

	log.Printf("Device %s listening on %s, UI on %s", sim.DeviceID(), sim.TCPAddr(), sim.UIAddr())
	if addr := sim.RelayAddr(); addr != nil {
		log.Printf("Relay endpoint on %s", addr)
	}

	// Run until interrupted.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if err := sim.Stop(); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}
