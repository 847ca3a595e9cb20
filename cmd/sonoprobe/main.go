// cmd/sonoprobe/main.go

// sonoprobe is a bench harness: a Modbus RTU master that exercises the
// same wire interface the production controller uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goburrow/modbus"

	"github.com/stverhae/sonomux/internal/monitor"
	"github.com/stverhae/sonomux/internal/regmap"
)

func main() {
	port := flag.String("port", "/dev/ttyUSB0", "Serial port")
	baud := flag.Int("baud", 115200, "Baud rate")
	slave := flag.Uint("slave", 2, "Slave id")
	unit := flag.Int("unit", 0, "Unit index for unit commands")
	units := flag.Int("units", regmap.MaxUnits, "Unit count for watch")
	interval := flag.Duration("interval", time.Second, "Watch poll interval")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	handler := modbus.NewRTUClientHandler(*port)
	handler.BaudRate = *baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = byte(*slave)
	handler.Timeout = 2 * time.Second

	if err := handler.Connect(); err != nil {
		log.Fatalf("connect %s: %v", *port, err)
	}
	defer handler.Close()

	client := modbus.NewClient(handler)

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "status":
		err = status(client, *units)
	case "dump":
		err = dump(client, *unit)
	case "watch":
		err = watch(client, *units, *interval)
	case "enable":
		err = writeReg(client, regmap.RegGlobalEnable, 1)
	case "disable":
		err = writeReg(client, regmap.RegGlobalEnable, 0)
	case "estop":
		err = writeReg(client, regmap.RegEmergencyStop, 1)
	case "sysreset":
		err = writeReg(client, regmap.RegSystemReset, 1)
	case "start":
		err = writeReg(client, regmap.UnitAddr(*unit, regmap.OffStartStop), 1)
	case "stop":
		err = writeReg(client, regmap.UnitAddr(*unit, regmap.OffStartStop), 0)
	case "reset":
		err = writeReg(client, regmap.UnitAddr(*unit, regmap.OffOverloadReset), 1)
	case "amp":
		if flag.NArg() < 2 {
			usage()
		}
		var v uint64
		if v, err = strconv.ParseUint(flag.Arg(1), 10, 16); err == nil {
			err = writeReg(client, regmap.UnitAddr(*unit, regmap.OffAmplitude), uint16(v))
		}
	default:
		usage()
	}

	if err != nil {
		log.Fatalf("%s failed: %v", flag.Arg(0), err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr,
		"usage: sonoprobe [flags] status|dump|watch|enable|disable|estop|sysreset|start|stop|reset|amp <pct>\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func writeReg(client modbus.Client, addr uint16, value uint16) error {
	_, err := client.WriteSingleRegister(addr, value)
	return err
}

func status(client modbus.Client, units int) error {
	p, err := monitor.New(monitor.Config{Units: units, Interval: time.Second}, client)
	if err != nil {
		return err
	}
	res := p.PollOnce()
	if res.Err != nil {
		return res.Err
	}
	printSystem(res.Snapshot.System)
	return nil
}

func dump(client modbus.Client, unit int) error {
	raw, err := client.ReadHoldingRegisters(
		regmap.UnitAddr(unit, regmap.UnitControlSize),
		regmap.UnitBlockSize-regmap.UnitControlSize)
	if err != nil {
		return err
	}
	regs := make([]uint16, len(raw)/2)
	for i := range regs {
		regs[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
	}
	u, err := monitor.DecodeUnit(regs)
	if err != nil {
		return err
	}
	printUnit(unit, u)
	return nil
}

// watch polls the full register map on an interval until interrupted.
func watch(client modbus.Client, units int, interval time.Duration) error {
	p, err := monitor.New(monitor.Config{Units: units, Interval: interval}, client)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := make(chan monitor.Result)
	go p.Run(ctx, out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-out:
			if res.Err != nil {
				log.Printf("poll failed: %v", res.Err)
				continue
			}
			fmt.Printf("---- %s ----\n", res.At.Format(time.TimeOnly))
			printSystem(res.Snapshot.System)
			for i, u := range res.Snapshot.Units {
				printUnit(i, u)
			}
		}
	}
}

func printSystem(s monitor.SystemStatus) {
	fmt.Printf("system: enabled=%v estop=%v watchdog=%v comm=%v\n",
		s.Enabled, s.EStop, s.Watchdog, s.CommFault)
	fmt.Printf("active:      %d units, mask 0x%04x\n", s.ActiveCount, s.ActiveMask)
	fmt.Printf("watchdog ok: %v\n", s.WatchdogOK)
	fmt.Printf("comm errors: %d (last exception %d)\n", s.CommErrors, s.LastException)
	fmt.Printf("uptime:      %ds\n", s.UptimeSecs)
	fmt.Printf("firmware:    0x%04x\n", s.Firmware)
}

func printUnit(i int, u monitor.UnitStatus) {
	fmt.Printf("unit %d: %s", i, u.State)
	if u.Overload {
		fmt.Print(" OVERLOAD-IN")
	}
	if u.Fault {
		fmt.Printf(" fault=%s", u.LastFault)
	}
	fmt.Printf("\n  amp: %d%%  power raw: %d  freq raw: %d  locked: %v\n",
		u.ActualAmplitude, u.PowerRaw, u.FrequencyRaw, u.FreqLocked)
	fmt.Printf("  starts: %d  runtime: %ds  faults: %d\n",
		u.StartCount, u.RuntimeSecs, u.FaultCount)
}
