// Command modbus-probe is a small diagnostic client: given the same
// config.toml a modbussim instance is running, it connects over TCP and
// polls every configured point once per interval, printing its current
// value. It exists to exercise the simulator's wire format from a real
// Modbus client library rather than from the simulator's own test suite.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"modbussim/internal/config"

	mb "github.com/goburrow/modbus"
)

func main() {
	var configPath, addr string
	var interval time.Duration
	flag.StringVar(&configPath, "config", "config.toml", "path to the simulator's configuration file")
	flag.StringVar(&addr, "addr", "127.0.0.1:1502", "TCP address of the running simulator")
	flag.DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	handler := mb.NewTCPClientHandler(addr)
	handler.Timeout = 5 * time.Second
	handler.SlaveId = byte(cfg.Device.UnitID)
	if err := handler.Connect(); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer handler.Close()

	client := mb.NewClient(handler)

	for {
		pollOnce(client, cfg)
		time.Sleep(interval)
	}
}

func pollOnce(client mb.Client, cfg *config.Config) {
	for _, pc := range cfg.Device.Coils {
		data, err := client.ReadCoils(pc.Address, 1)
		report("coil", pc.Address, data, err)
	}
	for _, pc := range cfg.Device.DiscreteInputs {
		data, err := client.ReadDiscreteInputs(pc.Address, 1)
		report("discrete_input", pc.Address, data, err)
	}
	for _, pc := range cfg.Device.HoldingRegisters {
		data, err := client.ReadHoldingRegisters(pc.Address, 1)
		report("holding_register", pc.Address, data, err)
	}
	for _, pc := range cfg.Device.InputRegisters {
		data, err := client.ReadInputRegisters(pc.Address, 1)
		report("input_register", pc.Address, data, err)
	}
}

func report(table string, address uint16, data []byte, err error) {
	if err != nil {
		log.Printf("%s@%d: %v", table, address, err)
		return
	}
	if len(data) == 1 {
		fmt.Printf("%s@%d = %t\n", table, address, data[0]&0x01 == 0x01)
		return
	}
	fmt.Printf("%s@%d = %v\n", table, address, data)
}
