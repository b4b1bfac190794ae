//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers/hcsr04"
)

// adcFullScale is the 10-bit range the gas thresholds are expressed in
const adcFullScale = 1023

// errNotADCPin is returned for a pin without an ADC input
var errNotADCPin = errors.New("pin has no ADC input")

// adcLevel samples one ADC channel. TinyGo returns 16-bit samples; they are
// reduced to 10 bits and multiplied by scale.
type adcLevel struct {
	adc   machine.ADC
	scale float32
}

// newADCLevel configures an ADC input on GPIO26-29.
// scale 0 reports the raw 10-bit level.
func newADCLevel(pin uint8, scale float32) (*adcLevel, error) {
	if pin < 26 || pin > 29 {
		return nil, errNotADCPin
	}
	adc := machine.ADC{Pin: machine.Pin(pin)}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return nil, err
	}
	return &adcLevel{adc: adc, scale: scale}, nil
}

func (l *adcLevel) ReadLevel() (float32, bool) {
	raw := l.adc.Get() >> 6
	if l.scale == 0 {
		return float32(raw), true
	}
	return float32(raw) * l.scale / adcFullScale, true
}

// ultrasonic wraps an HC-SR04 range finder
type ultrasonic struct {
	dev hcsr04.Device
}

func newUltrasonic(trigger, echo uint8) *ultrasonic {
	dev := hcsr04.New(machine.Pin(trigger), machine.Pin(echo))
	dev.Configure()
	return &ultrasonic{dev: dev}
}

// ReadDistanceCM blocks for at most the driver's echo timeout. The driver
// returns 0 when no echo came back.
func (u *ultrasonic) ReadDistanceCM() (float32, bool) {
	mm := u.dev.ReadDistance()
	if mm <= 0 {
		return 0, false
	}
	return float32(mm) / 10, true
}
