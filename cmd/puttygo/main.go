package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/rechermann/puttygo/manager"
	"github.com/rechermann/puttygo/profile"
	"github.com/rechermann/puttygo/transport"
)

const (
	ctrlA = 0x01
)

func main() {
	os.Exit(run())
}

func run() int {
	serialPort := flag.String("serial", "", "Serial device path, e.g. /dev/ttyUSB0")
	baud := flag.Uint("baud", 9600, "Serial baud rate")
	sshHost := flag.String("ssh", "", "SSH host:port, e.g. 10.0.0.1:22")
	sshUser := flag.String("user", "", "SSH username")
	sshPassword := flag.String("password", "", "SSH password")
	profileName := flag.String("profile", "", "Named profile to load from -profiles")
	profilesPath := flag.String("profiles", "", "Path to a profiles.yaml to resolve -profile against")
	flag.Parse()

	cfg, err := resolveConfig(*serialPort, uint32(*baud), *sshHost, *sshUser, *sshPassword, *profileName, *profilesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "puttygo: %v\n", err)
		return 1
	}

	mgr := manager.New()
	id, err := mgr.AddConnection(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "puttygo: connect failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "puttygo: connected id=%s; Ctrl+A x to quit\n", id.String())

	sub, err := mgr.Subscribe(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "puttygo: subscribe failed: %v\n", err)
		return 1
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range sub.Chunks() {
			os.Stdout.Write(chunk)
		}
	}()

	stdinFD := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(stdinFD)
	if err != nil {
		fmt.Fprintf(os.Stderr, "puttygo: raw mode failed: %v\n", err)
		return 1
	}
	defer term.Restore(stdinFD, oldState)

	buf := make([]byte, 1)
	lastWasCtrlA := false
	for {
		n, err := os.Stdin.Read(buf)
		if n == 0 || err != nil {
			break
		}
		b := buf[0]

		if lastWasCtrlA && b == 'x' {
			mgr.StopConnection(id)
			break
		}
		lastWasCtrlA = b == ctrlA
		if lastWasCtrlA {
			continue
		}

		if err := mgr.WriteBytes(id, buf[:n]); err != nil {
			log.Debug().Err(err).Msg("puttygo: write failed, connection likely closed")
			break
		}
	}

	term.Restore(stdinFD, oldState)
	<-done
	fmt.Fprintln(os.Stderr, "\nputtygo: disconnected")
	return 0
}

func resolveConfig(serialPort string, baud uint32, sshHost, sshUser, sshPassword, profileName, profilesPath string) (transport.Config, error) {
	if profileName != "" {
		if profilesPath == "" {
			return transport.Config{}, fmt.Errorf("-profile requires -profiles")
		}
		store, err := profile.Load(profilesPath)
		if err != nil {
			return transport.Config{}, fmt.Errorf("load profiles: %w", err)
		}
		cfg, ok := store.Get(profileName)
		if !ok {
			return transport.Config{}, fmt.Errorf("unknown profile %q", profileName)
		}
		return cfg, nil
	}

	if serialPort != "" {
		return transport.Config{Kind: transport.KindSerial, Serial: transport.SerialConfig{Port: serialPort, Baud: baud}}, nil
	}

	if sshHost != "" {
		host, port, err := net.SplitHostPort(sshHost)
		if err != nil {
			return transport.Config{}, fmt.Errorf("parse -ssh %q: %w", sshHost, err)
		}
		portNum, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return transport.Config{}, fmt.Errorf("parse -ssh port %q: %w", port, err)
		}
		return transport.Config{Kind: transport.KindSSH, SSH: transport.SSHConfig{Host: host, Port: uint16(portNum), User: sshUser, Password: sshPassword}}, nil
	}

	return transport.Config{}, fmt.Errorf("one of -serial, -ssh, or -profile is required")
}
