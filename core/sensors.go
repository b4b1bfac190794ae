package core

// MaxRangeCM is reported for an ultrasonic read with no echo
const MaxRangeCM = 400

// Reading is one sensor value. An invalid reading carries the held (or
// default) value but must never raise the emergency latch on its own.
type Reading struct {
	Value float32
	Valid bool
}

// Readings is one sensor-update tick worth of values
type Readings struct {
	Front   Reading // cm
	Rear    Reading // cm
	Gas     Reading // raw ADC level
	Battery Reading // volts
}

// RangeSensor measures a distance in cm. ok is false on no echo or an
// out-of-range result. Implementations may block, but only for a bounded time.
type RangeSensor interface {
	ReadDistanceCM() (cm float32, ok bool)
}

// LevelSensor samples a scalar level such as gas concentration or battery voltage
type LevelSensor interface {
	ReadLevel() (value float32, ok bool)
}

// average is a fixed-window moving average
type average struct {
	buf   [8]float32
	n     int
	next  int
	size  int
	total float32
}

func newAverage(size int) average {
	if size <= 0 || size > 8 {
		size = 8
	}
	return average{size: size}
}

func (a *average) add(v float32) float32 {
	if a.n == a.size {
		a.total -= a.buf[a.next]
	} else {
		a.n++
	}
	a.buf[a.next] = v
	a.total += v
	a.next = (a.next + 1) % a.size
	return a.total / float32(a.n)
}

// SensorSuite owns the node's sensors and turns raw samples into Readings.
// Distances are taken as-is; gas and battery are smoothed.
type SensorSuite struct {
	Front   RangeSensor
	Rear    RangeSensor
	Gas     LevelSensor
	Battery LevelSensor

	gasAvg  average
	battAvg average
	last    Readings
	invalid uint32
}

// NewSensorSuite creates a suite; any sensor may be nil
func NewSensorSuite(front, rear RangeSensor, gas, battery LevelSensor) *SensorSuite {
	return &SensorSuite{
		Front:   front,
		Rear:    rear,
		Gas:     gas,
		Battery: battery,
		gasAvg:  newAverage(4),
		battAvg: newAverage(8),
		last: Readings{
			Front: Reading{Value: MaxRangeCM},
			Rear:  Reading{Value: MaxRangeCM},
		},
	}
}

// Refresh samples every sensor once
func (s *SensorSuite) Refresh() Readings {
	s.last.Front = s.readRange(s.Front)
	s.last.Rear = s.readRange(s.Rear)
	s.last.Gas = s.readLevel(s.Gas, &s.gasAvg, s.last.Gas)
	s.last.Battery = s.readLevel(s.Battery, &s.battAvg, s.last.Battery)
	return s.last
}

// Last returns the readings of the most recent Refresh
func (s *SensorSuite) Last() Readings {
	return s.last
}

// InvalidCount returns how many samples were rejected
func (s *SensorSuite) InvalidCount() uint32 {
	return s.invalid
}

func (s *SensorSuite) readRange(sensor RangeSensor) Reading {
	if sensor == nil {
		return Reading{Value: MaxRangeCM}
	}
	cm, ok := sensor.ReadDistanceCM()
	if !ok || cm <= 0 || cm > MaxRangeCM {
		s.invalid++
		return Reading{Value: MaxRangeCM}
	}
	return Reading{Value: cm, Valid: true}
}

func (s *SensorSuite) readLevel(sensor LevelSensor, avg *average, prev Reading) Reading {
	if sensor == nil {
		return Reading{}
	}
	v, ok := sensor.ReadLevel()
	if !ok {
		s.invalid++
		return Reading{Value: prev.Value}
	}
	return Reading{Value: avg.add(v), Valid: true}
}
