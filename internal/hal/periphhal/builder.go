// internal/hal/periphhal/builder.go
package periphhal

import (
	"periph.io/x/conn/v3/analog"

	"github.com/stverhae/sonomux/internal/config"
	"github.com/stverhae/sonomux/internal/hal"
)

// ADCProvider resolves a board ADC channel to a periph pin. Boards
// without power sense pass nil and the power register reads zero.
type ADCProvider func(channel int) (analog.PinADC, error)

// BuildUnitIO wires one configured channel to real pins.
func BuildUnitIO(u config.UnitConfig, adc ADCProvider) (hal.UnitIO, error) {
	var io hal.UnitIO
	var err error

	if io.Start, err = Output(u.StartPin); err != nil {
		return hal.UnitIO{}, err
	}
	if io.Reset, err = Output(u.ResetPin); err != nil {
		return hal.UnitIO{}, err
	}
	if io.Overload, err = Input(u.OverloadPin); err != nil {
		return hal.UnitIO{}, err
	}
	if io.FreqLock, err = Input(u.FreqLockPin); err != nil {
		return hal.UnitIO{}, err
	}
	if io.Amplitude, err = PWM(u.AmplitudePin); err != nil {
		return hal.UnitIO{}, err
	}
	if io.Frequency, err = Frequency(u.FrequencyPin); err != nil {
		return hal.UnitIO{}, err
	}

	io.Power = NullAnalog()
	if adc != nil && u.PowerChannel != nil {
		pin, err := adc(*u.PowerChannel)
		if err != nil {
			return hal.UnitIO{}, err
		}
		io.Power = Analog(pin)
	}

	return io, nil
}
