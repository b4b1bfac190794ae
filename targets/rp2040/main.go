//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"nightfall/config"
	"nightfall/core"
	"nightfall/host/node"
)

// watchdogTimeoutMs resets the board when the main loop stalls
const watchdogTimeoutMs = 2000

var (
	// Debug counters
	loopPanics uint32
	bootErrors uint32
)

func main() {
	// Disable the watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	core.SetDebugWriter(func(s string) { println(s) })

	cfg := selectConfig()
	core.SetDebugEnabled(cfg.Debug)
	core.DebugPrintln("nightfall " + cfg.Role + " booting")

	gpio := NewRPGPIODriver()
	drivers := node.Drivers{
		GPIO:    gpio,
		PWM:     NewRP2040PWMDriver(),
		Sensors: buildSensors(cfg),
	}

	link, err := newUARTLink(uint32(cfg.Serial.Baud))
	if err != nil {
		bootErrors++
		core.DebugPrintln("link: " + err.Error())
	} else {
		drivers.LinkReader = link
		drivers.LinkWriter = link
		go link.readerLoop()
	}

	n, err := node.New(cfg, drivers)
	if err != nil {
		// Without a loop nothing can drive the motors; blink the buzzer pin
		// so the fault is visible
		haltWithError(gpio, cfg, err)
	}
	n.SetClock(hardwareClock{})

	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeoutMs})
	machine.Watchdog.Start()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					loopPanics++
				}
			}()
			n.Step()
		}()

		machine.Watchdog.Update()

		// Yield to the reader goroutine
		time.Sleep(time.Millisecond)
	}
}

// buildSensors creates the sensors named in the configuration; any that are
// not wired stay nil
func buildSensors(cfg *config.NodeConfig) *core.SensorSuite {
	s := cfg.Sensors
	machine.InitADC()

	var front, rear core.RangeSensor
	var gas, battery core.LevelSensor

	if trig, echo, ok := pinPair(s.FrontTrigger, s.FrontEcho); ok {
		front = newUltrasonic(trig, echo)
	}
	if trig, echo, ok := pinPair(s.RearTrigger, s.RearEcho); ok {
		rear = newUltrasonic(trig, echo)
	}
	if pin, err := config.ParsePin(s.GasADC); err == nil {
		if l, err := newADCLevel(pin, 0); err == nil {
			gas = l
		} else {
			bootErrors++
		}
	}
	if pin, err := config.ParsePin(s.BatteryADC); err == nil {
		if l, err := newADCLevel(pin, s.BatteryScale); err == nil {
			battery = l
		} else {
			bootErrors++
		}
	}

	if front == nil && rear == nil && gas == nil && battery == nil {
		return nil
	}
	return core.NewSensorSuite(front, rear, gas, battery)
}

func pinPair(a, b string) (uint8, uint8, bool) {
	pa, err := config.ParsePin(a)
	if err != nil {
		return 0, 0, false
	}
	pb, err := config.ParsePin(b)
	if err != nil {
		return 0, 0, false
	}
	return pa, pb, true
}

func haltWithError(gpio *RPGPIODriver, cfg *config.NodeConfig, err error) {
	pin, perr := config.ParsePin(cfg.Sensors.BuzzerPin)
	on := false
	for {
		core.DebugPrintln("boot failed: " + err.Error())
		if perr == nil {
			on = !on
			gpio.SetPin(core.GPIOPin(pin), on)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
